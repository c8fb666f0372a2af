package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"

	"github.com/i474232898/weather-location-tracker/internal/common"
	"github.com/i474232898/weather-location-tracker/internal/forecast"
	"github.com/i474232898/weather-location-tracker/internal/scheduler"
)

var (
	ErrNotFound           = errors.New("location not found")
	ErrDuplicateLocation  = errors.New("location already tracked")
	ErrInvalidOrder       = errors.New("order must list every tracked location exactly once")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

// Scheduler is the part of the refresh scheduler the tracker drives.
type Scheduler interface {
	Register(locationID string, interval time.Duration, refresh scheduler.RefreshFunc) error
	Unregister(locationID string)
}

// Refresher is the part of the forecast repository the tracker drives.
type Refresher interface {
	Refresh(ctx context.Context, t forecast.Target) error
	ForceRefresh(ctx context.Context, t forecast.Target) error
	Forget(locationID string)
}

// Tracker owns the ordered list of tracked locations and keeps the store, the
// scheduler and the forecast cache in step with it.
type Tracker struct {
	store    Store
	sched    Scheduler
	repo     Refresher
	interval time.Duration
	clock    clock.Clock

	// writeMu serializes mutations, including their store calls. mu only
	// guards the slice so readers never wait on I/O.
	writeMu   sync.Mutex
	mu        sync.RWMutex
	locations []Location

	background sync.WaitGroup
	// refreshTimeout bounds the immediate refresh after an add.
	refreshTimeout time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used to stamp new locations.
func WithClock(clk clock.Clock) Option {
	return func(t *Tracker) {
		if clk != nil {
			t.clock = clk
		}
	}
}

// WithRefreshTimeout bounds the background refresh that follows an add.
func WithRefreshTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.refreshTimeout = d
		}
	}
}

// New creates a Tracker refreshing every location each interval.
func New(store Store, sched Scheduler, repo Refresher, interval time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		store:          store,
		sched:          sched,
		repo:           repo,
		interval:       interval,
		clock:          clock.NewClock(),
		refreshTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads the persisted locations, repairs their order and primary flag,
// schedules every one of them and starts a background refresh for each.
func (t *Tracker) Load(ctx context.Context) (err error) {
	defer common.Time(ctx, "tracking.Load")(&err)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	locs, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}
	sort.SliceStable(locs, func(i, j int) bool { return locs[i].ListIndex < locs[j].ListIndex })

	dirty := false
	primarySeen := false
	for i := range locs {
		if locs[i].ListIndex != i {
			locs[i].ListIndex = i
			dirty = true
		}
		if locs[i].IsPrimary {
			if primarySeen {
				locs[i].IsPrimary = false
				if err := t.store.Save(ctx, locs[i]); err != nil {
					return fmt.Errorf("demote duplicate primary %s: %w", locs[i].ID, err)
				}
			}
			primarySeen = true
		}
	}
	if dirty {
		if err := t.store.SaveOrder(ctx, ids(locs)); err != nil {
			return fmt.Errorf("repair location order: %w", err)
		}
	}

	t.mu.Lock()
	t.locations = locs
	t.mu.Unlock()

	for _, loc := range locs {
		if err := t.schedule(loc.ID); err != nil {
			return err
		}
		t.refreshInBackground(loc, false)
	}
	log.Printf("tracking: loaded %d locations", len(locs))
	return nil
}

// OnLocationAdded appends loc to the end of the list, persists it, schedules it
// and starts an immediate background refresh. The stored location is returned.
func (t *Tracker) OnLocationAdded(ctx context.Context, loc Location) (Location, error) {
	if !loc.Coordinates.Valid() {
		return Location{}, ErrInvalidCoordinates
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current := t.snapshot()
	for _, existing := range current {
		if existing.Coordinates.Same(loc.Coordinates) {
			return Location{}, fmt.Errorf("%w: %s", ErrDuplicateLocation, existing.DisplayName)
		}
	}

	loc.ID = uuid.NewString()
	loc.DisplayName = strings.TrimSpace(loc.DisplayName)
	loc.ListIndex = len(current)
	loc.IsPrimary = false
	loc.LastFetchedAt = time.Time{}
	loc.CreatedAt = t.clock.Now().UTC()

	if err := t.store.Save(ctx, loc); err != nil {
		return Location{}, fmt.Errorf("save location: %w", err)
	}

	t.mu.Lock()
	t.locations = append(t.locations, loc)
	t.mu.Unlock()

	if err := t.schedule(loc.ID); err != nil {
		return Location{}, err
	}
	t.refreshInBackground(loc, true)

	log.Printf("tracking: added %s (%s) at index %d", loc.ID, loc.DisplayName, loc.ListIndex)
	return loc, nil
}

// OnLocationRemoved deletes a location, closes the gap in the list order,
// cancels its schedule and drops its cached forecast. Once the store delete
// succeeds the location is gone from the tracker even if persisting the new
// order fails; Load repairs a gapped order on the next start.
func (t *Tracker) OnLocationRemoved(ctx context.Context, id string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current := t.snapshot()
	idx := indexOf(current, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := t.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}

	remaining := append(current[:idx:idx], current[idx+1:]...)
	densify(remaining)

	t.mu.Lock()
	t.locations = remaining
	t.mu.Unlock()

	t.sched.Unregister(id)
	t.repo.Forget(id)

	if err := t.store.SaveOrder(ctx, ids(remaining)); err != nil {
		log.Printf("tracking: removed %s but failed to persist the new order: %v", id, err)
		return nil
	}

	log.Printf("tracking: removed %s", id)
	return nil
}

// OnLocationsReordered sets the list order; order must be a permutation of the
// tracked ids.
func (t *Tracker) OnLocationsReordered(ctx context.Context, order []string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.reorder(ctx, order)
}

// Move moves the location at index from to index to, shifting the others.
func (t *Tracker) Move(ctx context.Context, from, to int) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	order := ids(t.snapshot())
	if from < 0 || from >= len(order) || to < 0 || to >= len(order) {
		return fmt.Errorf("%w: move %d -> %d with %d locations", ErrInvalidOrder, from, to, len(order))
	}
	if from == to {
		return nil
	}

	moved := order[from]
	order = append(order[:from], order[from+1:]...)
	order = append(order[:to], append([]string{moved}, order[to:]...)...)
	return t.reorder(ctx, order)
}

func (t *Tracker) reorder(ctx context.Context, order []string) error {
	current := t.snapshot()
	if len(order) != len(current) {
		return fmt.Errorf("%w: got %d ids for %d locations", ErrInvalidOrder, len(order), len(current))
	}

	byID := make(map[string]Location, len(current))
	for _, loc := range current {
		byID[loc.ID] = loc
	}

	next := make([]Location, 0, len(order))
	for _, id := range order {
		loc, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown or repeated id %q", ErrInvalidOrder, id)
		}
		delete(byID, id)
		next = append(next, loc)
	}
	densify(next)

	if err := t.store.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("save location order: %w", err)
	}

	t.mu.Lock()
	t.locations = next
	t.mu.Unlock()
	return nil
}

// EnsurePrimary creates the primary (device) location at the top of the list,
// or updates it in place when it already exists. A tracked location at the
// same coordinates is promoted instead of being duplicated.
func (t *Tracker) EnsurePrimary(ctx context.Context, loc Location) (Location, error) {
	if !loc.Coordinates.Valid() {
		return Location{}, ErrInvalidCoordinates
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current := t.snapshot()
	for i, existing := range current {
		if !existing.IsPrimary {
			continue
		}

		moved := !existing.Coordinates.Same(loc.Coordinates)
		if moved {
			for j, other := range current {
				if j != i && other.Coordinates.Same(loc.Coordinates) {
					return Location{}, fmt.Errorf("%w: %s", ErrDuplicateLocation, other.DisplayName)
				}
			}
		}
		existing.Coordinates = loc.Coordinates
		if name := strings.TrimSpace(loc.DisplayName); name != "" {
			existing.DisplayName = name
		}
		if loc.AdminArea != "" {
			existing.AdminArea = loc.AdminArea
		}
		if loc.Country != "" {
			existing.Country = loc.Country
		}
		if err := t.store.Save(ctx, existing); err != nil {
			return Location{}, fmt.Errorf("save primary location: %w", err)
		}
		current[i] = existing

		t.mu.Lock()
		t.locations = current
		t.mu.Unlock()

		t.refreshInBackground(existing, moved)
		return existing, nil
	}

	for i, existing := range current {
		if existing.Coordinates.Same(loc.Coordinates) {
			return t.promote(ctx, current, i, loc)
		}
	}

	loc.ID = uuid.NewString()
	loc.DisplayName = strings.TrimSpace(loc.DisplayName)
	loc.IsPrimary = true
	loc.ListIndex = 0
	loc.CreatedAt = t.clock.Now().UTC()

	if err := t.store.Save(ctx, loc); err != nil {
		return Location{}, fmt.Errorf("save primary location: %w", err)
	}

	next := append([]Location{loc}, current...)
	densify(next)
	if err := t.store.SaveOrder(ctx, ids(next)); err != nil {
		return Location{}, fmt.Errorf("save location order: %w", err)
	}

	t.mu.Lock()
	t.locations = next
	t.mu.Unlock()

	if err := t.schedule(loc.ID); err != nil {
		return Location{}, err
	}
	t.refreshInBackground(loc, true)

	log.Printf("tracking: primary location %s (%s)", loc.ID, loc.DisplayName)
	return loc, nil
}

// promote makes current[idx] the primary location and moves it to the top.
func (t *Tracker) promote(ctx context.Context, current []Location, idx int, loc Location) (Location, error) {
	primary := current[idx]
	primary.IsPrimary = true
	if name := strings.TrimSpace(loc.DisplayName); name != "" {
		primary.DisplayName = name
	}
	if loc.AdminArea != "" {
		primary.AdminArea = loc.AdminArea
	}
	if loc.Country != "" {
		primary.Country = loc.Country
	}

	next := make([]Location, 0, len(current))
	next = append(next, primary)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	densify(next)
	primary = next[0]

	if err := t.store.Save(ctx, primary); err != nil {
		return Location{}, fmt.Errorf("save primary location: %w", err)
	}
	if err := t.store.SaveOrder(ctx, ids(next)); err != nil {
		return Location{}, fmt.Errorf("save location order: %w", err)
	}

	t.mu.Lock()
	t.locations = next
	t.mu.Unlock()

	log.Printf("tracking: promoted %s (%s) to primary location", primary.ID, primary.DisplayName)
	return primary, nil
}

// RecordFetch stores the fetch time and the time zone learned from a forecast.
// It matches forecast.FetchHook.
func (t *Tracker) RecordFetch(id string, at time.Time, zoneID string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current := t.snapshot()
	idx := indexOf(current, id)
	if idx < 0 {
		return
	}

	loc := current[idx]
	loc.LastFetchedAt = at.UTC()
	if zoneID != "" {
		loc.TimeZoneID = zoneID
	}
	current[idx] = loc

	t.mu.Lock()
	t.locations = current
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Save(ctx, loc); err != nil {
		log.Printf("tracking: failed to persist fetch time for %s: %v", id, err)
	}
}

// RefreshNow refreshes one location immediately, ignoring the minimum age.
func (t *Tracker) RefreshNow(ctx context.Context, id string) error {
	loc, err := t.Get(id)
	if err != nil {
		return err
	}
	return t.repo.ForceRefresh(ctx, loc.Target())
}

// List returns the tracked locations in list order.
func (t *Tracker) List() []Location {
	return t.snapshot()
}

// Get returns one tracked location.
func (t *Tracker) Get(id string) (Location, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, loc := range t.locations {
		if loc.ID == id {
			return loc, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Wait blocks until background refreshes started by the tracker return.
func (t *Tracker) Wait() {
	t.background.Wait()
}

// refresh is the scheduler callback.
func (t *Tracker) refresh(ctx context.Context, id string) error {
	loc, err := t.Get(id)
	if err != nil {
		return err
	}
	return t.repo.Refresh(ctx, loc.Target())
}

func (t *Tracker) schedule(id string) error {
	if err := t.sched.Register(id, t.interval, t.refresh); err != nil {
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	return nil
}

// refreshInBackground refreshes loc off the caller's goroutine. Without force
// the repository's minimum refresh age applies.
func (t *Tracker) refreshInBackground(loc Location, force bool) {
	t.background.Add(1)
	go func() {
		defer t.background.Done()

		ctx, cancel := context.WithTimeout(common.WithRequestID(context.Background(), loc.ID), t.refreshTimeout)
		defer cancel()

		refresh := t.repo.Refresh
		if force {
			refresh = t.repo.ForceRefresh
		}
		if err := refresh(ctx, loc.Target()); err != nil {
			log.Printf("tracking: initial refresh for %s failed: %v", loc.ID, err)
		}
	}()
}

func (t *Tracker) snapshot() []Location {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Location, len(t.locations))
	copy(out, t.locations)
	return out
}

func densify(locs []Location) {
	for i := range locs {
		locs[i].ListIndex = i
	}
}

func ids(locs []Location) []string {
	out := make([]string, len(locs))
	for i, loc := range locs {
		out[i] = loc.ID
	}
	return out
}

func indexOf(locs []Location, id string) int {
	for i, loc := range locs {
		if loc.ID == id {
			return i
		}
	}
	return -1
}
