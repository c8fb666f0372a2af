package tracking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"

	"github.com/i474232898/weather-location-tracker/internal/forecast"
	"github.com/i474232898/weather-location-tracker/internal/scheduler"
	"github.com/i474232898/weather-location-tracker/internal/store"
	"github.com/i474232898/weather-location-tracker/internal/tracking"
)

type stubProvider struct {
	calls atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) FetchForecast(ctx context.Context, lat, lon float64) (forecast.Payload, error) {
	p.calls.Add(1)
	return forecast.Payload{TimeZone: "Europe/London", Current: forecast.Current{Temperature: 50}}, nil
}

type fixture struct {
	clock    *fakeclock.FakeClock
	store    *store.MemoryStore
	sched    *scheduler.Scheduler
	repo     *forecast.Repository
	provider *stubProvider
	tracker  *tracking.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    fakeclock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		store:    store.NewMemoryStore(),
		provider: &stubProvider{},
	}
	f.sched = scheduler.New(scheduler.NewClockTimers(f.clock))
	f.repo = forecast.NewRepository(f.provider, forecast.WithClock(f.clock))
	f.tracker = tracking.New(f.store, f.sched, f.repo, 10*time.Minute, tracking.WithClock(f.clock))
	f.repo.OnFetched(f.tracker.RecordFetch)

	t.Cleanup(func() {
		f.tracker.Wait()
		f.sched.Stop()
	})
	return f
}

func (f *fixture) add(t *testing.T, name string, lat, lon float64) tracking.Location {
	t.Helper()
	loc, err := f.tracker.OnLocationAdded(context.Background(), tracking.Location{
		DisplayName: name,
		Coordinates: tracking.Coordinates{Lat: lat, Lon: lon},
	})
	if err != nil {
		t.Fatalf("OnLocationAdded(%s): %v", name, err)
	}
	return loc
}

func names(locs []tracking.Location) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.DisplayName
	}
	return out
}

func assertDense(t *testing.T, locs []tracking.Location) {
	t.Helper()
	for i, l := range locs {
		if l.ListIndex != i {
			t.Fatalf("%s has ListIndex %d at position %d", l.DisplayName, l.ListIndex, i)
		}
	}
}

func assertOrder(t *testing.T, got []tracking.Location, want ...string) {
	t.Helper()
	n := names(got)
	if len(n) != len(want) {
		t.Fatalf("expected %v, got %v", want, n)
	}
	for i := range want {
		if n[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, n)
		}
	}
	assertDense(t, got)
}

func TestAddSchedulesPersistsAndRefreshes(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "London", 51.5072, -0.1276)

	if a.ID == "" || a.ListIndex != 0 || a.IsPrimary {
		t.Fatalf("unexpected location %+v", a)
	}
	if !f.sched.IsScheduled(a.ID) {
		t.Fatal("new location was not scheduled")
	}

	persisted, _ := f.store.List(context.Background())
	if len(persisted) != 1 || persisted[0].ID != a.ID {
		t.Fatalf("location not persisted: %+v", persisted)
	}

	f.tracker.Wait()
	if f.provider.calls.Load() != 1 {
		t.Fatalf("expected an immediate refresh, got %d fetches", f.provider.calls.Load())
	}
	got, _ := f.tracker.Get(a.ID)
	if got.TimeZoneID != "Europe/London" || !got.LastFetchedAt.Equal(f.clock.Now()) {
		t.Fatalf("fetch hook not applied: %+v", got)
	}
	if _, ok := f.repo.Get(a.ID); !ok {
		t.Fatal("forecast not cached")
	}
}

func TestAddRejectsDuplicatesAndBadCoordinates(t *testing.T) {
	f := newFixture(t)
	f.add(t, "Paris", 48.8566, 2.3522)

	_, err := f.tracker.OnLocationAdded(context.Background(), tracking.Location{
		DisplayName: "Paris again",
		Coordinates: tracking.Coordinates{Lat: 48.85661, Lon: 2.35221},
	})
	if !errors.Is(err, tracking.ErrDuplicateLocation) {
		t.Fatalf("expected ErrDuplicateLocation, got %v", err)
	}

	_, err = f.tracker.OnLocationAdded(context.Background(), tracking.Location{
		Coordinates: tracking.Coordinates{Lat: 91, Lon: 0},
	})
	if !errors.Is(err, tracking.ErrInvalidCoordinates) {
		t.Fatalf("expected ErrInvalidCoordinates, got %v", err)
	}

	if len(f.tracker.List()) != 1 {
		t.Fatalf("rejected adds changed the list: %v", names(f.tracker.List()))
	}
}

func TestReorderAssignsDenseIndices(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, 1)
	b := f.add(t, "B", 2, 2)
	c := f.add(t, "C", 3, 3)

	if err := f.tracker.OnLocationsReordered(context.Background(), []string{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("OnLocationsReordered: %v", err)
	}
	assertOrder(t, f.tracker.List(), "C", "A", "B")

	persisted, _ := f.store.List(context.Background())
	assertOrder(t, persisted, "C", "A", "B")
}

func TestReorderRejectsNonPermutations(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, 1)
	b := f.add(t, "B", 2, 2)

	cases := [][]string{
		{a.ID},
		{a.ID, a.ID},
		{a.ID, "ghost"},
		{a.ID, b.ID, "ghost"},
	}
	for _, order := range cases {
		if err := f.tracker.OnLocationsReordered(context.Background(), order); !errors.Is(err, tracking.ErrInvalidOrder) {
			t.Errorf("order %v: expected ErrInvalidOrder, got %v", order, err)
		}
	}
	assertOrder(t, f.tracker.List(), "A", "B")
}

func TestMove(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 1, 1)
	f.add(t, "B", 2, 2)
	f.add(t, "C", 3, 3)
	f.add(t, "D", 4, 4)

	ctx := context.Background()
	if err := f.tracker.Move(ctx, 0, 2); err != nil {
		t.Fatalf("Move: %v", err)
	}
	assertOrder(t, f.tracker.List(), "B", "C", "A", "D")

	if err := f.tracker.Move(ctx, 3, 0); err != nil {
		t.Fatalf("Move: %v", err)
	}
	assertOrder(t, f.tracker.List(), "D", "B", "C", "A")

	if err := f.tracker.Move(ctx, 0, 4); !errors.Is(err, tracking.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}

func TestRemoveDensifiesAndUnschedules(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 1, 1)
	b := f.add(t, "B", 2, 2)
	f.add(t, "C", 3, 3)
	f.tracker.Wait()

	if err := f.tracker.OnLocationRemoved(context.Background(), b.ID); err != nil {
		t.Fatalf("OnLocationRemoved: %v", err)
	}
	assertOrder(t, f.tracker.List(), "A", "C")

	persisted, _ := f.store.List(context.Background())
	assertOrder(t, persisted, "A", "C")

	if f.sched.IsScheduled(b.ID) {
		t.Fatal("removed location is still scheduled")
	}
	if _, ok := f.repo.Get(b.ID); ok {
		t.Fatal("removed location still has a cached forecast")
	}
	if err := f.tracker.OnLocationRemoved(context.Background(), b.ID); !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsurePrimary(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 1, 1)

	ctx := context.Background()
	p, err := f.tracker.EnsurePrimary(ctx, tracking.Location{
		DisplayName: "Current Location",
		Coordinates: tracking.Coordinates{Lat: 10, Lon: 10},
	})
	if err != nil {
		t.Fatalf("EnsurePrimary: %v", err)
	}
	assertOrder(t, f.tracker.List(), "Current Location", "A")
	if !f.sched.IsScheduled(p.ID) {
		t.Fatal("primary location not scheduled")
	}

	again, err := f.tracker.EnsurePrimary(ctx, tracking.Location{
		Coordinates: tracking.Coordinates{Lat: 11, Lon: 11},
	})
	if err != nil {
		t.Fatalf("EnsurePrimary(update): %v", err)
	}
	if again.ID != p.ID || again.Coordinates.Lat != 11 || again.DisplayName != "Current Location" {
		t.Fatalf("primary not updated in place: %+v", again)
	}

	primaries := 0
	for _, l := range f.tracker.List() {
		if l.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary, got %d", primaries)
	}
}

func TestLoadRepairsOrderAndSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := []tracking.Location{
		{ID: "x", DisplayName: "X", ListIndex: 7, IsPrimary: true, Coordinates: tracking.Coordinates{Lat: 1, Lon: 1}},
		{ID: "y", DisplayName: "Y", ListIndex: 2, IsPrimary: true, Coordinates: tracking.Coordinates{Lat: 2, Lon: 2}},
		{ID: "z", DisplayName: "Z", ListIndex: 4, Coordinates: tracking.Coordinates{Lat: 3, Lon: 3}},
	}
	for _, l := range seed {
		if err := f.store.Save(ctx, l); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if err := f.tracker.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	locs := f.tracker.List()
	assertOrder(t, locs, "Y", "Z", "X")
	if !locs[0].IsPrimary || locs[2].IsPrimary {
		t.Fatalf("expected only the first primary to survive: %+v", locs)
	}
	for _, l := range locs {
		if !f.sched.IsScheduled(l.ID) {
			t.Fatalf("%s not scheduled after Load", l.ID)
		}
	}

	f.tracker.Wait()
	persisted, _ := f.store.List(ctx)
	assertOrder(t, persisted, "Y", "Z", "X")
}

func TestLoadRefreshesLoadedLocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved := tracking.Location{ID: "saved", DisplayName: "Saved", Coordinates: tracking.Coordinates{Lat: 5, Lon: 5}}
	if err := f.store.Save(ctx, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := f.tracker.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.tracker.Wait()

	if n := f.provider.calls.Load(); n != 1 {
		t.Fatalf("expected one fetch after Load, got %d", n)
	}
	if _, ok := f.repo.Get(saved.ID); !ok {
		t.Fatal("loaded location has no cached forecast")
	}
	got, _ := f.tracker.Get(saved.ID)
	if got.LastFetchedAt.IsZero() {
		t.Fatalf("fetch hook not applied after Load: %+v", got)
	}
}

type failingOrderStore struct {
	*store.MemoryStore
}

func (s failingOrderStore) SaveOrder(ctx context.Context, ids []string) error {
	return errors.New("disk full")
}

func TestRemoveCommitsWhenOrderCannotBePersisted(t *testing.T) {
	f := newFixture(t)
	mem := store.NewMemoryStore()
	tracker := tracking.New(failingOrderStore{mem}, f.sched, f.repo, 10*time.Minute, tracking.WithClock(f.clock))
	f.repo.OnFetched(tracker.RecordFetch)
	t.Cleanup(tracker.Wait)

	ctx := context.Background()
	a, err := tracker.OnLocationAdded(ctx, tracking.Location{DisplayName: "A", Coordinates: tracking.Coordinates{Lat: 1, Lon: 1}})
	if err != nil {
		t.Fatalf("OnLocationAdded: %v", err)
	}
	if _, err := tracker.OnLocationAdded(ctx, tracking.Location{DisplayName: "B", Coordinates: tracking.Coordinates{Lat: 2, Lon: 2}}); err != nil {
		t.Fatalf("OnLocationAdded: %v", err)
	}
	tracker.Wait()

	if err := tracker.OnLocationRemoved(ctx, a.ID); err != nil {
		t.Fatalf("OnLocationRemoved: %v", err)
	}
	assertOrder(t, tracker.List(), "B")
	if f.sched.IsScheduled(a.ID) {
		t.Fatal("removed location is still scheduled")
	}
	if _, ok := f.repo.Get(a.ID); ok {
		t.Fatal("removed location still has a cached forecast")
	}
	persisted, _ := mem.List(ctx)
	if len(persisted) != 1 || persisted[0].DisplayName != "B" {
		t.Fatalf("unexpected persisted locations %+v", persisted)
	}
	if err := tracker.OnLocationRemoved(ctx, a.ID); !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on a second removal, got %v", err)
	}
}

func TestEnsurePrimaryPromotesTrackedLocation(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", 1, 1)
	b := f.add(t, "B", 10, 10)
	f.add(t, "C", 20, 20)

	ctx := context.Background()
	p, err := f.tracker.EnsurePrimary(ctx, tracking.Location{
		DisplayName: "Here",
		Coordinates: tracking.Coordinates{Lat: 10.00001, Lon: 10},
	})
	if err != nil {
		t.Fatalf("EnsurePrimary: %v", err)
	}
	if p.ID != b.ID || !p.IsPrimary || p.ListIndex != 0 {
		t.Fatalf("expected B to be promoted, got %+v", p)
	}
	assertOrder(t, f.tracker.List(), "Here", "A", "C")

	persisted, _ := f.store.List(ctx)
	assertOrder(t, persisted, "Here", "A", "C")

	_, err = f.tracker.EnsurePrimary(ctx, tracking.Location{
		Coordinates: tracking.Coordinates{Lat: 20, Lon: 20},
	})
	if !errors.Is(err, tracking.ErrDuplicateLocation) {
		t.Fatalf("moving the primary onto C: expected ErrDuplicateLocation, got %v", err)
	}
	assertOrder(t, f.tracker.List(), "Here", "A", "C")
}

func TestScheduledTickRefreshesLocation(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "A", 1, 1)
	f.tracker.Wait()
	before := f.provider.calls.Load()

	f.clock.WaitForWatcherAndIncrement(10 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for f.provider.calls.Load() == before {
		if time.Now().After(deadline) {
			t.Fatal("scheduled refresh never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := f.tracker.RefreshNow(context.Background(), a.ID); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if err := f.tracker.RefreshNow(context.Background(), "ghost"); !errors.Is(err, tracking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
