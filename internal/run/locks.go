package run

import "sync"

// lockTable serializes turns per conversation. Entries are reference-counted
// so the table does not grow with the contact population.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*convLock)}
}

// acquire blocks until the conversation's lock is held.
func (t *lockTable) acquire(key string) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &convLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
}

// release unlocks the conversation's lock and drops the entry when no other
// waiter holds a reference.
func (t *lockTable) release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		return
	}
	l.mu.Unlock()
	l.refs--
	if l.refs <= 0 {
		delete(t.locks, key)
	}
}
