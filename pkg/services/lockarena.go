package services

import "sync"

// LockArena hands out one mutex per key so at most one refresh runs per data
// source at a time. Locks are created on first use and never removed; the
// arena grows with the number of distinct data sources, which is small.
type LockArena struct {
	locks sync.Map // key -> *sync.Mutex
}

// NewLockArena creates an empty arena.
func NewLockArena() *LockArena {
	return &LockArena{}
}

// TryLock attempts to take the lock for key without blocking. Returns true
// when acquired; the caller must call Unlock with the same key.
func (a *LockArena) TryLock(key string) bool {
	mu, _ := a.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex).TryLock()
}

// Unlock releases the lock for key. Panics if the lock is not held, same as
// sync.Mutex.
func (a *LockArena) Unlock(key string) {
	mu, ok := a.locks.Load(key)
	if !ok {
		panic("lockarena: unlock of unknown key " + key)
	}
	mu.(*sync.Mutex).Unlock()
}
