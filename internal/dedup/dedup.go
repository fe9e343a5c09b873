// Package dedup suppresses reprocessing of channel message ids within a
// bounded window.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Store remembers message ids for a bounded window. Check is a single atomic
// test-and-set: for any id, exactly one concurrent caller observes "new"
// until the entry expires.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // oldest first
	window     time.Duration
	maxEntries int
	now        func() time.Time
}

type entry struct {
	id        string
	firstSeen time.Time
}

// NewStore creates a dedup store with the given window and size bound.
func NewStore(window time.Duration, maxEntries int) *Store {
	if window <= 0 {
		window = 30 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Store{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		window:     window,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Check records id and reports whether it was new. A false return means a
// live entry already existed and the event must be dropped.
func (s *Store) Check(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if _, ok := s.entries[id]; ok {
		return false
	}

	elem := s.order.PushBack(entry{id: id, firstSeen: now})
	s.entries[id] = elem

	// Size bound: evict oldest entries beyond the cap.
	for len(s.entries) > s.maxEntries {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(entry).id)
	}
	return true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.entries)
}

func (s *Store) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	for {
		oldest := s.order.Front()
		if oldest == nil {
			return
		}
		e := oldest.Value.(entry)
		if e.firstSeen.After(cutoff) {
			return
		}
		s.order.Remove(oldest)
		delete(s.entries, e.id)
	}
}
