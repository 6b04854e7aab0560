// Package keyedmutex provides one mutex per key, created on demand and
// released when no goroutine holds or waits on it.
package keyedmutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Mutex serializes critical sections that share a key. The zero value is ready to use.
type Mutex[K comparable] struct {
	mu sync.Mutex
	m  map[K]*entry
}

func (km *Mutex[K]) Lock(key K) {
	km.mu.Lock()
	if km.m == nil {
		km.m = make(map[K]*entry)
	}
	e, ok := km.m[key]
	if !ok {
		e = &entry{}
		km.m[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases key. Unlocking a key that is not locked panics, like sync.Mutex.
func (km *Mutex[K]) Unlock(key K) {
	km.mu.Lock()
	e, ok := km.m[key]
	if !ok {
		km.mu.Unlock()
		panic("keyedmutex: unlock of unlocked key")
	}
	e.refs--
	if e.refs == 0 {
		delete(km.m, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}

// Do runs fn while holding key.
func (km *Mutex[K]) Do(key K, fn func()) {
	km.Lock(key)
	defer km.Unlock(key)
	fn()
}

// Len reports how many keys are currently held or awaited.
func (km *Mutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.m)
}
