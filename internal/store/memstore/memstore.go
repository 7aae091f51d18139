// Package memstore provides a process-local store.EntryStore. It backs the
// "memory" cache driver and the tests of packages built on the store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/studycache/internal/domain"
	"github.com/phrazzld/studycache/internal/store"
)

// Store keeps entries in a map guarded by a mutex.
type Store struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	closed  bool
	failure error
}

var _ store.EntryStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]domain.CacheEntry)}
}

// SetFailure makes every subsequent operation fail with err until it is
// reset with nil.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

func (s *Store) check(op string) error {
	if s.closed {
		return store.ErrStoreClosed
	}
	if s.failure != nil {
		return store.NewStoreError("cache_entry", op, "injected failure", s.failure)
	}
	return nil
}

func clone(e domain.CacheEntry) *domain.CacheEntry {
	e.Payload = append([]byte(nil), e.Payload...)
	return &e
}

// Get returns a copy of the entry stored under key.
func (s *Store) Get(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("get"); err != nil {
		return nil, err
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, store.ErrEntryNotFound
	}
	return clone(e), nil
}

// PutIfNewer stores a copy of entry unless the stored copy is at least as new.
func (s *Store) PutIfNewer(_ context.Context, entry *domain.CacheEntry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put"); err != nil {
		return false, err
	}
	if existing, ok := s.entries[entry.Key]; ok && existing.Timestamp >= entry.Timestamp {
		return false, nil
	}
	s.entries[entry.Key] = *clone(*entry)
	return true, nil
}

// GetAll returns copies of every entry ordered by key.
func (s *Store) GetAll(_ context.Context) ([]*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("list"); err != nil {
		return nil, err
	}
	out := make([]*domain.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, clone(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the given keys.
func (s *Store) Delete(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete"); err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if _, ok := s.entries[k]; ok {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry.
func (s *Store) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("clear"); err != nil {
		return 0, err
	}
	n := len(s.entries)
	s.entries = make(map[string]domain.CacheEntry)
	return n, nil
}

// Size approximates the bytes held by the stored entries.
func (s *Store) Size(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("size"); err != nil {
		return 0, err
	}
	var total int64
	for _, e := range s.entries {
		total += int64(len(e.Key) + len(e.Version) + len(e.Payload) + 8)
	}
	return total, nil
}

// Close marks the store closed; later operations fail with store.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
