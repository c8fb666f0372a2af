package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-location-tracker/internal/common"
)

// ErrInvalidInterval is returned when a location is registered with a
// non-positive refresh interval.
var ErrInvalidInterval = errors.New("refresh interval must be positive")

// RefreshFunc refreshes the forecast of one location.
type RefreshFunc func(ctx context.Context, locationID string) error

// Scheduled describes one active per-location schedule.
type Scheduled struct {
	LocationID string        `json:"locationId"`
	Interval   time.Duration `json:"interval"`
}

type entry struct {
	interval time.Duration
	refresh  RefreshFunc
	cancel   func()
}

// Scheduler keeps one recurring timer per location id. Ticks for different
// locations are independent; a tick never waits for the previous callback of
// the same location to finish.
type Scheduler struct {
	timers      Timers
	tickTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	inflight sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickTimeout bounds how long a single refresh callback may run.
func WithTickTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickTimeout = d
		}
	}
}

// New creates a Scheduler on top of the given timer backend.
func New(timers Timers, opts ...Option) *Scheduler {
	s := &Scheduler{
		timers:      timers,
		tickTimeout: 30 * time.Second,
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register starts refreshing locationID every interval. Registering an id that
// is already scheduled is a no-op.
func (s *Scheduler) Register(locationID string, interval time.Duration, refresh RefreshFunc) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[locationID]; ok {
		return nil
	}

	e := &entry{interval: interval, refresh: refresh}
	cancel, err := s.timers.Every(locationID, interval, func() { s.fire(locationID, e) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", locationID, err)
	}
	e.cancel = cancel
	s.entries[locationID] = e

	log.Printf("scheduler: registered %s every %s", locationID, interval)
	return nil
}

// Unregister cancels the schedule of locationID, if any. A callback that is
// already running is not interrupted.
func (s *Scheduler) Unregister(locationID string) {
	s.mu.Lock()
	e, ok := s.entries[locationID]
	delete(s.entries, locationID)
	s.mu.Unlock()

	if !ok {
		return
	}
	e.cancel()
	log.Printf("scheduler: unregistered %s", locationID)
}

// UnregisterAll cancels every schedule.
func (s *Scheduler) UnregisterAll() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
	if len(entries) > 0 {
		log.Printf("scheduler: unregistered %d locations", len(entries))
	}
}

// Stop cancels every schedule, stops the timer backend and waits for running
// callbacks to return.
func (s *Scheduler) Stop() {
	s.UnregisterAll()
	s.timers.Stop()
	s.inflight.Wait()
}

// IsScheduled reports whether locationID has an active schedule.
func (s *Scheduler) IsScheduled(locationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[locationID]
	return ok
}

// Len returns the number of active schedules.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Scheduled lists the active schedules ordered by location id.
func (s *Scheduler) Scheduled() []Scheduled {
	s.mu.Lock()
	out := make([]Scheduled, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Scheduled{LocationID: id, Interval: e.interval})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out
}

// fire is called by the backend on every tick. Ticks from a schedule that has
// since been cancelled or replaced are dropped.
func (s *Scheduler) fire(locationID string, e *entry) {
	s.mu.Lock()
	if s.entries[locationID] != e {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go s.run(locationID, e)
}

func (s *Scheduler) run(locationID string, e *entry) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(common.WithRequestID(context.Background(), locationID), s.tickTimeout)
	defer cancel()

	var err error
	defer common.Time(ctx, "scheduler.refresh")(&err)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
			log.Printf("scheduler: refresh for %s panicked: %v", locationID, r)
		}
	}()

	if err = e.refresh(ctx, locationID); err != nil {
		log.Printf("scheduler: refresh failed for %s: %v", locationID, err)
	}
}
