package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/i474232898/weather-location-tracker/internal/tracking"
)

var (
	// ErrNotFound is returned when no location is stored under an id.
	ErrNotFound = errors.New("location not stored")
)

// MemoryStore is a concurrency-safe in-memory implementation of tracking.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location id
	data map[string]tracking.Location
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]tracking.Location),
	}
}

// List returns all locations ordered by list index, then creation time.
func (s *MemoryStore) List(ctx context.Context) ([]tracking.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tracking.Location, 0, len(s.data))
	for _, loc := range s.data {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ListIndex != out[j].ListIndex {
			return out[i].ListIndex < out[j].ListIndex
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Save inserts or replaces a location.
func (s *MemoryStore) Save(ctx context.Context, loc tracking.Location) error {
	if loc.ID == "" {
		return fmt.Errorf("save location: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[loc.ID] = loc
	return nil
}

// SaveOrder assigns list indices in the given order. Unknown ids fail the whole
// update.
func (s *MemoryStore) SaveOrder(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.data[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	for i, id := range ids {
		loc := s.data[id]
		loc.ListIndex = i
		s.data[id] = loc
	}
	return nil
}

// Delete removes a location.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.data, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
