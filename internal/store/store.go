package store

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Store is a bounded in-memory store with LRU eviction and per-entry TTLs.
// Total size never exceeds capacity once a mutating call has returned.
type Store struct {
	capacity int64 // Maximum total size in capacity units
	size     int64 // Current total size in capacity units

	// LRU implementation
	items map[string]*list.Element
	order *list.List // front = most recently used

	// Synchronization
	mu sync.RWMutex

	// Metrics
	stats Stats
}

// New creates a store with the given capacity in size units.
func New(capacity int64) *Store {
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		stats: Stats{
			Capacity: capacity,
		},
	}
}

// Put inserts or replaces the valid entry for key. A ttl of 0 keeps the
// entry until it is evicted or invalidated.
func (s *Store) Put(key string, value any, ttl time.Duration, size int64) error {
	return s.insert(&Entry{
		Key:    key,
		Value:  value,
		Status: StatusValid,
		Size:   size,
		TTL:    ttl,
	})
}

// PutNegative records a failed load for key so the failure can be replayed
// until ttl elapses instead of repeating the load.
func (s *Store) PutNegative(key string, cause error, ttl time.Duration, size int64) error {
	return s.insert(&Entry{
		Key:    key,
		Err:    cause,
		Status: StatusNegative,
		Size:   size,
		TTL:    ttl,
	})
}

// insert adds a fresh entry, evicting from the LRU end until it fits.
// The incoming entry itself is never a candidate for eviction.
func (s *Store) insert(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if the entry is too large for the store as a whole
	if e.Size > s.capacity {
		return ErrTooLarge
	}

	now := time.Now()
	e.CreatedAt = now
	e.LastAccessedAt = now

	// Replacing releases the old entry's size first
	if elem, ok := s.items[e.Key]; ok {
		s.removeElement(elem)
	}

	// Evict items if necessary
	for s.size+e.Size > s.capacity && s.order.Len() > 0 {
		s.evictOldest()
	}

	elem := s.order.PushFront(e)
	s.items[e.Key] = elem
	s.size += e.Size

	s.stats.Size = s.size
	return nil
}

// Get returns the entry for key. Absent keys and elapsed TTLs are misses;
// an elapsed entry is removed on the way out. A hit refreshes the entry's
// LRU position and LastAccessedAt, whether the entry is valid or negative.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.stats.Misses++
		return Entry{}, false
	}

	now := time.Now()
	e := elem.Value.(*Entry)
	if e.expired(now) {
		s.removeElement(elem)
		s.stats.Expired++
		s.stats.Misses++
		return Entry{}, false
	}

	// Move to front (most recently used)
	s.order.MoveToFront(elem)
	e.LastAccessedAt = now
	e.Hits++

	s.stats.Hits++
	if e.Status == StatusNegative {
		s.stats.NegativeHits++
	}
	return *e, true
}

// Peek returns the entry for key without counting the lookup or touching
// its LRU position. Expired entries are invisible but left for the sweep.
// Intended for re-check paths that already recorded their lookup.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.items[key]
	if !ok {
		return Entry{}, false
	}
	e := elem.Value.(*Entry)
	if e.expired(time.Now()) {
		return Entry{}, false
	}
	return *e, true
}

// Contains checks if a live entry exists for key without updating LRU state.
func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	return !elem.Value.(*Entry).expired(time.Now())
}

// Delete removes the entry for key. It reports whether an entry was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(elem)
	return true
}

// DeletePrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	elem := s.order.Front()
	for elem != nil {
		next := elem.Next()
		if strings.HasPrefix(elem.Value.(*Entry).Key, prefix) {
			s.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// SweepExpired removes every entry whose TTL has elapsed and returns the
// number removed. Calling it again with no time passing removes nothing.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	swept := 0

	// Start from the back (oldest entries)
	elem := s.order.Back()
	for elem != nil {
		prev := elem.Prev()
		if elem.Value.(*Entry).expired(now) {
			s.removeElement(elem)
			s.stats.Expired++
			swept++
		}
		elem = prev
	}

	return swept
}

// ShrinkTo evicts least recently used entries until total size is at most
// fraction of capacity. It returns the number of entries evicted and the
// size released.
func (s *Store) ShrinkTo(fraction float64) (evicted int, freed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := int64(fraction * float64(s.capacity))
	before := s.size

	for s.size > target && s.order.Len() > 0 {
		s.evictOldest()
		evicted++
	}

	return evicted, before - s.size
}

// Clear removes all entries from the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.size = 0
	s.stats.Size = 0
}

// Len returns the number of entries in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Size returns the current total size in capacity units.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.size
}

// Capacity returns the configured capacity in size units.
func (s *Store) Capacity() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.capacity
}

// Utilization returns current size as a fraction of capacity.
func (s *Store) Utilization() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.capacity <= 0 {
		return 0
	}
	return float64(s.size) / float64(s.capacity)
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Size = s.size
	stats.Entries = int64(len(s.items))

	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}

	return stats
}

// Entries returns diagnostic metadata for every entry, most recently
// used first.
func (s *Store) Entries() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.items))
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*Entry)
		infos = append(infos, Info{
			Key:            e.Key,
			Status:         e.Status.String(),
			Size:           e.Size,
			Hits:           e.Hits,
			CreatedAt:      e.CreatedAt,
			LastAccessedAt: e.LastAccessedAt,
			ExpiresAt:      e.ExpiresAt(),
		})
	}

	return infos
}

// evictOldest removes the least recently used entry (must be called with lock held).
func (s *Store) evictOldest() {
	elem := s.order.Back()
	if elem != nil {
		s.removeElement(elem)
		s.stats.Evictions++
	}
}

// removeElement removes an element from the store (must be called with lock held).
func (s *Store) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	e := elem.Value.(*Entry)
	delete(s.items, e.Key)
	s.size -= e.Size

	s.stats.Size = s.size
}
