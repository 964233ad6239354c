package version

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	info   Info
	values ValueMap
}

type memoryHistory struct {
	entries []memoryEntry
	stable  int // 0 when never set
}

// MemoryStore is an in-memory Store guarded by a RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*memoryHistory
	closed   bool
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*memoryHistory),
		now:      time.Now,
	}
}

// Record implements Store. The store keeps its own copy of values.
func (s *MemoryStore) Record(_ context.Context, project string, values ValueMap) (Info, error) {
	if project == "" {
		return Info{}, ErrEmptyProject
	}
	digest, err := Digest(values)
	if err != nil {
		return Info{}, fmt.Errorf("record %s: %w", project, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Info{}, ErrClosed
	}

	h := s.projects[project]
	if h == nil {
		h = &memoryHistory{}
		s.projects[project] = h
	}
	info := Info{
		Number:  len(h.entries) + 1,
		Created: s.now().UTC(),
		Digest:  digest,
	}
	if values == nil {
		values = ValueMap{}
	}
	h.entries = append(h.entries, memoryEntry{info: info, values: values.Clone()})
	info.Stable = h.stableNumber() == info.Number
	return info, nil
}

// Values implements Store.
func (s *MemoryStore) Values(_ context.Context, project string, n int) (ValueMap, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	h := s.projects[project]
	if h == nil || n < 1 || n > len(h.entries) {
		return nil, false, nil
	}
	return h.entries[n-1].values.Clone(), true, nil
}

// Stable implements Store.
func (s *MemoryStore) Stable(_ context.Context, project string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	h := s.projects[project]
	if h == nil || len(h.entries) == 0 {
		return 0, false, nil
	}
	return h.stableNumber(), true, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context, project string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	h := s.projects[project]
	if h == nil || len(h.entries) == 0 {
		return 0, false, nil
	}
	return len(h.entries), true, nil
}

// SetStable implements Store.
func (s *MemoryStore) SetStable(_ context.Context, project string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	h := s.projects[project]
	if h == nil || n < 1 || n > len(h.entries) {
		return fmt.Errorf("set stable %s@%d: %w", project, n, ErrVersionNotFound)
	}
	h.stable = n
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, project string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	h := s.projects[project]
	if h == nil {
		return nil, nil
	}
	stable := h.stableNumber()
	out := make([]Info, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.info
		out[i].Stable = e.info.Number == stable
	}
	return out, nil
}

// Rename implements Store.
func (s *MemoryStore) Rename(_ context.Context, oldName, newName string) error {
	if newName == "" {
		return ErrEmptyProject
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	h := s.projects[oldName]
	if h == nil || oldName == newName {
		return nil
	}
	if existing := s.projects[newName]; existing != nil && len(existing.entries) > 0 {
		return fmt.Errorf("rename %s to %s: %w", oldName, newName, ErrHistoryExists)
	}
	delete(s.projects, oldName)
	s.projects[newName] = h
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.projects = nil
	return nil
}

func (h *memoryHistory) stableNumber() int {
	if h.stable > 0 {
		return h.stable
	}
	return len(h.entries)
}
