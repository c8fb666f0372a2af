package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-location-tracker/internal/forecast"
	"github.com/i474232898/weather-location-tracker/internal/geocode"
	"github.com/i474232898/weather-location-tracker/internal/localtime"
	"github.com/i474232898/weather-location-tracker/internal/scheduler"
	"github.com/i474232898/weather-location-tracker/internal/store"
	"github.com/i474232898/weather-location-tracker/internal/tracking"
	"github.com/i474232898/weather-location-tracker/internal/units"
	"github.com/i474232898/weather-location-tracker/internal/view"
)

type stubProvider struct {
	fail atomic.Bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) FetchForecast(ctx context.Context, lat, lon float64) (forecast.Payload, error) {
	if p.fail.Load() {
		return forecast.Payload{}, errors.New("upstream unavailable")
	}
	return forecast.Payload{TimeZone: "UTC", Current: forecast.Current{Temperature: 50}}, nil
}

type stubGeocoder struct {
	place geocode.Place
	err   error
}

func (g stubGeocoder) Lookup(ctx context.Context, q geocode.Query) (geocode.Place, error) {
	if g.err != nil {
		return geocode.Place{}, g.err
	}
	p := g.place
	p.Name = q.Name
	return p, nil
}

func (g stubGeocoder) Reverse(ctx context.Context, lat, lon float64) (geocode.Place, error) {
	return g.place, g.err
}

type testServer struct {
	app      *fiber.App
	tracker  *tracking.Tracker
	provider *stubProvider
	settings *units.Settings
}

func newTestServer(t *testing.T, gc geocode.Geocoder) *testServer {
	t.Helper()

	clk := fakeclock.NewFakeClock(time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC))
	provider := &stubProvider{}
	sched := scheduler.New(scheduler.NewClockTimers(clk))
	repo := forecast.NewRepository(provider, forecast.WithClock(clk))
	tracker := tracking.New(store.NewMemoryStore(), sched, repo, 10*time.Minute, tracking.WithClock(clk))
	repo.OnFetched(tracker.RecordFetch)
	settings := units.NewSettings(units.DefaultSelectedUnits())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{
		Tracker:   tracker,
		Forecasts: repo,
		Scheduler: sched,
		Settings:  settings,
		Formatter: localtime.NewFormatter(time.UTC, clk),
		Geocoder:  gc,
		Clock:     clk,
	})

	t.Cleanup(func() {
		tracker.Wait()
		sched.Stop()
	})
	return &testServer{app: app, tracker: tracker, provider: provider, settings: settings}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (s *testServer) add(t *testing.T, name string, lat, lon float64) view.LocationView {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"name": name, "lat": lat, "lon": lon})
	resp, data := s.do(t, http.MethodPost, "/api/v1/locations", string(body))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add %s: status %d: %s", name, resp.StatusCode, data)
	}
	var v view.LocationView
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

type listResponse struct {
	Units     units.SelectedUnits `json:"units"`
	Locations []view.LocationView `json:"locations"`
}

func TestAddAndGetLocation(t *testing.T) {
	s := newTestServer(t, nil)

	added := s.add(t, "London", 51.5072, -0.1276)
	if added.ID == "" || added.Name != "London" || added.ListIndex != 0 {
		t.Fatalf("unexpected location %+v", added)
	}

	resp, body := s.do(t, http.MethodGet, "/api/v1/locations", "")
	expectStatus(t, resp, body, http.StatusOK)
	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Locations) != 1 || list.Locations[0].ID != added.ID {
		t.Fatalf("unexpected list %+v", list.Locations)
	}
	if list.Units != units.DefaultSelectedUnits() {
		t.Fatalf("unexpected units %+v", list.Units)
	}

	resp, body = s.do(t, http.MethodGet, "/api/v1/locations/"+added.ID, "")
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = s.do(t, http.MethodGet, "/api/v1/locations/missing", "")
	expectStatus(t, resp, body, http.StatusNotFound)

	var errBody struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !errBody.Error || !strings.Contains(errBody.Message, "not found") {
		t.Fatalf("unexpected error body %+v", errBody)
	}
}

func TestAddLocationValidation(t *testing.T) {
	s := newTestServer(t, nil)
	s.add(t, "London", 51.5072, -0.1276)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"name":`, http.StatusBadRequest},
		{"missing name", `{"lat":1,"lon":1}`, http.StatusBadRequest},
		{"latitude out of range", `{"name":"X","lat":95,"lon":1}`, http.StatusBadRequest},
		{"longitude out of range", `{"name":"X","lat":1,"lon":-181}`, http.StatusBadRequest},
		{"lat without lon", `{"name":"X","lat":1}`, http.StatusBadRequest},
		{"no coordinates without geocoder", `{"name":"X"}`, http.StatusBadRequest},
		{"duplicate", `{"name":"London again","lat":51.50721,"lon":-0.12761}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, "/api/v1/locations", tc.body)
			expectStatus(t, resp, body, tc.want)
		})
	}

	if n := len(s.tracker.List()); n != 1 {
		t.Fatalf("rejected requests must not add locations, have %d", n)
	}
}

func TestAddLocationGeocodesName(t *testing.T) {
	s := newTestServer(t, stubGeocoder{place: geocode.Place{Country: "Japan", Lat: 35.6762, Lon: 139.6503}})

	resp, body := s.do(t, http.MethodPost, "/api/v1/locations", `{"name":"Tokyo"}`)
	expectStatus(t, resp, body, http.StatusCreated)

	locs := s.tracker.List()
	if len(locs) != 1 || locs[0].Coordinates.Lat != 35.6762 || locs[0].Coordinates.Lon != 139.6503 || locs[0].Country != "Japan" {
		t.Fatalf("unexpected tracked locations %+v", locs)
	}

	missing := newTestServer(t, stubGeocoder{err: geocode.ErrNoResults})
	resp, body = missing.do(t, http.MethodPost, "/api/v1/locations", `{"name":"Atlantis"}`)
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestReorderAndRemove(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.add(t, "A", 10, 10)
	b := s.add(t, "B", 20, 20)
	c := s.add(t, "C", 30, 30)

	order, _ := json.Marshal(map[string][]string{"ids": {c.ID, a.ID, b.ID}})
	resp, body := s.do(t, http.MethodPut, "/api/v1/locations/order", string(order))
	expectStatus(t, resp, body, http.StatusOK)

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"C", "A", "B"}
	for i, v := range list.Locations {
		if v.Name != want[i] || v.ListIndex != i {
			t.Fatalf("position %d: got %s/%d, want %s/%d", i, v.Name, v.ListIndex, want[i], i)
		}
	}

	partial, _ := json.Marshal(map[string][]string{"ids": {c.ID, a.ID}})
	resp, body = s.do(t, http.MethodPut, "/api/v1/locations/order", string(partial))
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = s.do(t, http.MethodDelete, "/api/v1/locations/"+a.ID, "")
	expectStatus(t, resp, body, http.StatusNoContent)

	resp, body = s.do(t, http.MethodDelete, "/api/v1/locations/"+a.ID, "")
	expectStatus(t, resp, body, http.StatusNotFound)

	locs := s.tracker.List()
	if len(locs) != 2 || locs[0].ID != c.ID || locs[1].ID != b.ID || locs[1].ListIndex != 1 {
		t.Fatalf("unexpected locations after removal %+v", locs)
	}
}

func TestRefreshLocation(t *testing.T) {
	s := newTestServer(t, nil)
	loc := s.add(t, "London", 51.5072, -0.1276)
	s.tracker.Wait()

	resp, body := s.do(t, http.MethodPost, "/api/v1/locations/"+loc.ID+"/refresh", "")
	expectStatus(t, resp, body, http.StatusOK)

	var v view.LocationView
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Temperature != "50 °F" || v.Stale || v.LastFetchedAt == nil {
		t.Fatalf("unexpected refreshed view %+v", v)
	}

	s.provider.fail.Store(true)
	resp, body = s.do(t, http.MethodPost, "/api/v1/locations/"+loc.ID+"/refresh", "")
	expectStatus(t, resp, body, http.StatusBadGateway)

	resp, body = s.do(t, http.MethodGet, "/api/v1/locations/"+loc.ID, "")
	expectStatus(t, resp, body, http.StatusOK)
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Stale || v.Temperature != "50 °F" {
		t.Fatalf("a failed refresh should keep the old forecast marked stale, got %+v", v)
	}

	resp, body = s.do(t, http.MethodPost, "/api/v1/locations/missing/refresh", "")
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestUnitsSettings(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.do(t, http.MethodPut, "/api/v1/settings/units", `{"temperature":"C","speed":"km/h"}`)
	expectStatus(t, resp, body, http.StatusOK)

	var got units.SelectedUnits
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := units.SelectedUnits{
		Temperature:   units.Celsius,
		Speed:         units.KilometersPerHour,
		Precipitation: units.Inches,
		Distance:      units.Miles,
	}
	if got != want || s.settings.Get() != want {
		t.Fatalf("expected %+v, got %+v (stored %+v)", want, got, s.settings.Get())
	}

	resp, body = s.do(t, http.MethodPut, "/api/v1/settings/units", `{"distance":"furlongs"}`)
	expectStatus(t, resp, body, http.StatusBadRequest)
	if s.settings.Get() != want {
		t.Fatalf("a rejected update must not change settings, got %+v", s.settings.Get())
	}

	resp, body = s.do(t, http.MethodGet, "/api/v1/settings/units", "")
	expectStatus(t, resp, body, http.StatusOK)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestSchedulesListsTrackedLocations(t *testing.T) {
	s := newTestServer(t, nil)
	loc := s.add(t, "London", 51.5072, -0.1276)

	resp, body := s.do(t, http.MethodGet, "/api/v1/schedules", "")
	expectStatus(t, resp, body, http.StatusOK)

	var got []scheduler.Scheduled
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].LocationID != loc.ID || got[0].Interval != 10*time.Minute {
		t.Fatalf("unexpected schedules %+v", got)
	}
}
