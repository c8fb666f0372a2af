package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-location-tracker/internal/common"
)

// ErrRefreshFailure wraps every failed refresh. The previous payload stays in
// place and the entry is marked stale.
var ErrRefreshFailure = errors.New("forecast refresh failed")

// Entry is the cached forecast of one location.
type Entry struct {
	LocationID string    `json:"locationId"`
	Payload    Payload   `json:"payload"`
	FetchedAt  time.Time `json:"fetchedAt"`
	Stale      bool      `json:"stale"`
	LastError  string    `json:"lastError,omitempty"`
	// Failures counts consecutive failed refreshes.
	Failures int `json:"failures"`
}

// HasPayload reports whether a refresh ever succeeded for the entry.
func (e Entry) HasPayload() bool {
	return !e.FetchedAt.IsZero()
}

// FetchHook is told about every successful refresh.
type FetchHook func(locationID string, at time.Time, zoneID string)

// Repository keeps the latest forecast per location. Concurrent refreshes of
// the same location share one network call; refreshes of different locations
// never wait for each other.
type Repository struct {
	provider Provider
	clock    clock.Clock
	minAge   time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	entries   map[string]*Entry
	onFetched FetchHook
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithClock sets the clock used to stamp fetches.
func WithClock(clk clock.Clock) RepositoryOption {
	return func(r *Repository) {
		if clk != nil {
			r.clock = clk
		}
	}
}

// WithMinRefreshAge makes Refresh skip locations fetched less than d ago.
func WithMinRefreshAge(d time.Duration) RepositoryOption {
	return func(r *Repository) {
		r.minAge = d
	}
}

func NewRepository(provider Provider, opts ...RepositoryOption) *Repository {
	r := &Repository{
		provider: provider,
		clock:    clock.NewClock(),
		entries:  make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnFetched installs the hook called after every successful refresh.
func (r *Repository) OnFetched(hook FetchHook) {
	r.mu.Lock()
	r.onFetched = hook
	r.mu.Unlock()
}

// Refresh fetches the forecast of t unless it was fetched within the minimum
// refresh age.
func (r *Repository) Refresh(ctx context.Context, t Target) error {
	return r.refresh(ctx, t, false)
}

// ForceRefresh fetches the forecast of t regardless of its age.
func (r *Repository) ForceRefresh(ctx context.Context, t Target) error {
	return r.refresh(ctx, t, true)
}

func (r *Repository) refresh(ctx context.Context, t Target, force bool) (err error) {
	defer common.Time(ctx, "forecast.Refresh")(&err)

	if !force && r.fresh(t.ID) {
		return nil
	}

	_, err, _ = r.group.Do(t.ID, func() (interface{}, error) {
		return nil, r.fetch(ctx, t)
	})
	return err
}

func (r *Repository) fresh(id string) bool {
	if r.minAge <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return ok && e.HasPayload() && !e.Stale && r.clock.Since(e.FetchedAt) < r.minAge
}

func (r *Repository) fetch(ctx context.Context, t Target) error {
	payload, err := r.provider.FetchForecast(ctx, t.Lat, t.Lon)
	now := r.clock.Now()

	r.mu.Lock()
	e, ok := r.entries[t.ID]
	if !ok {
		e = &Entry{LocationID: t.ID}
		r.entries[t.ID] = e
	}

	if err != nil {
		e.Stale = true
		e.Failures++
		e.LastError = err.Error()
		failures := e.Failures
		r.mu.Unlock()

		log.Printf("forecast: %s refresh for %s failed (%d in a row): %v", r.provider.Name(), t.ID, failures, err)
		return fmt.Errorf("%w: %s: %w", ErrRefreshFailure, t.ID, err)
	}

	e.Payload = payload
	e.FetchedAt = now
	e.Stale = false
	e.Failures = 0
	e.LastError = ""
	hook := r.onFetched
	r.mu.Unlock()

	if hook != nil {
		hook(t.ID, now, payload.TimeZone)
	}
	return nil
}

// Get returns a copy of the cached entry of a location.
func (r *Repository) Get(locationID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[locationID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Forget drops the cached entry of a location.
func (r *Repository) Forget(locationID string) {
	r.mu.Lock()
	delete(r.entries, locationID)
	r.mu.Unlock()
}

// Len returns the number of cached entries.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
