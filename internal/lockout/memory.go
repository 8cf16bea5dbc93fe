package lockout

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	failures    []time.Time
	lockedUntil time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func trim(failures []time.Time, cutoff time.Time) []time.Time {
	kept := failures[:0]
	for _, at := range failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}

func (s *MemoryStore) AddFailure(_ context.Context, id string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		entry = &memoryEntry{}
		s.entries[id] = entry
	}
	entry.failures = append(trim(entry.failures, now.Add(-window)), now)
	return len(entry.failures), nil
}

func (s *MemoryStore) Lock(_ context.Context, id string, until time.Time, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		entry = &memoryEntry{}
		s.entries[id] = entry
	}
	entry.lockedUntil = until
	entry.failures = nil
	return nil
}

func (s *MemoryStore) LockedUntil(_ context.Context, id string, now time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.lockedUntil.IsZero() {
		return time.Time{}, false, nil
	}
	if !now.Before(entry.lockedUntil) {
		delete(s.entries, id)
		return time.Time{}, false, nil
	}
	return entry.lockedUntil, true, nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Sweep drops expired locks together with their history, and identifiers with
// no failure left inside the window.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if now.Before(entry.lockedUntil) {
			continue
		}
		if !entry.lockedUntil.IsZero() {
			delete(s.entries, id)
			removed++
			continue
		}
		entry.failures = trim(entry.failures, now.Add(-window))
		if len(entry.failures) == 0 {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
