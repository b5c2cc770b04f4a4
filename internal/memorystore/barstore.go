package memorystore

import (
	"sync"

	"marketstructure/internal/bar"
)

// DefaultCapacity is the number of bars kept per bar type when none is configured.
const DefaultCapacity = 512

// MemoryBarStore keeps a bounded window of the most recent bars per bar type.
type MemoryBarStore struct {
	globalMu sync.RWMutex
	data     map[string]*barTypeStore
	capacity int
}

type barTypeStore struct {
	mu   sync.Mutex
	bars []bar.Bar
}

func NewBarStore(capacity int) *MemoryBarStore {
	if capacity < 3 {
		capacity = DefaultCapacity
	}
	return &MemoryBarStore{
		data:     make(map[string]*barTypeStore),
		capacity: capacity,
	}
}

func (s *MemoryBarStore) Add(b bar.Bar) {
	// Fast path: lock per-type store only
	s.globalMu.RLock()
	store, ok := s.data[b.Type]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if store, ok = s.data[b.Type]; !ok {
			store = &barTypeStore{bars: make([]bar.Bar, 0, s.capacity)}
			s.data[b.Type] = store
		}
		s.globalMu.Unlock()
	}

	store.mu.Lock()
	if len(store.bars) == s.capacity {
		copy(store.bars, store.bars[1:])
		store.bars = store.bars[:len(store.bars)-1]
	}
	store.bars = append(store.bars, b)
	store.mu.Unlock()
}

func (s *MemoryBarStore) get(barType string) *barTypeStore {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return s.data[barType]
}

// Last returns up to n of the most recent bars, oldest first.
func (s *MemoryBarStore) Last(barType string, n int) []bar.Bar {
	store := s.get(barType)
	if store == nil || n <= 0 {
		return nil
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if n > len(store.bars) {
		n = len(store.bars)
	}
	cp := make([]bar.Bar, n)
	copy(cp, store.bars[len(store.bars)-n:])
	return cp
}

func (s *MemoryBarStore) Count(barType string) int {
	store := s.get(barType)
	if store == nil {
		return 0
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.bars)
}

// CountAll returns the total number of bars stored across all bar types.
func (s *MemoryBarStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, store := range s.data {
		store.mu.Lock()
		total += len(store.bars)
		store.mu.Unlock()
	}
	return total
}
