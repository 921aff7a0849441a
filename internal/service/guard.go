package service

import "sync"

// keyedMutex provides one blocking mutex per listing id. It serializes
// purchase attempts in-process so a concurrent buyer waits and then observes
// the sold listing, and it doubles as the reentrancy guard: a nested attempt
// on the same listing blocks instead of seeing partial state.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*guardEntry
}

type guardEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[int64]*guardEntry)}
}

// Lock blocks until the mutex for id is held.
func (k *keyedMutex) Lock(id int64) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &guardEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for id, discarding it once no waiter remains.
func (k *keyedMutex) Unlock(id int64) {
	k.mu.Lock()
	e := k.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
