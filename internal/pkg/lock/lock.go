// Package lock provides in-process keyed locks used to serialize mutations of
// a single record (one mission, one clan) within this instance.
package lock

import (
	"context"
	"sync"
	"time"
)

// entry is a one-slot semaphore with a reference count so idle keys are freed.
type entry struct {
	sem  chan struct{}
	refs int
}

// KeyLock provides one mutex per key.
type KeyLock[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// New creates an empty KeyLock.
func New[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{entries: make(map[K]*entry)}
}

func (l *KeyLock[K]) acquire(key K) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyLock[K]) release(key K, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key's lock is held.
func (l *KeyLock[K]) Lock(key K) {
	e := l.acquire(key)
	e.sem <- struct{}{}
}

// Unlock releases the key's lock. Unlocking a key that is not held panics,
// like sync.Mutex.
func (l *KeyLock[K]) Unlock(key K) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key")
	}
	<-e.sem
	l.release(key, e)
}

// TryLock acquires the key's lock without blocking.
func (l *KeyLock[K]) TryLock(key K) bool {
	e := l.acquire(key)
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		l.release(key, e)
		return false
	}
}

// LockContext waits for the key's lock until ctx is done or timeout elapses.
func (l *KeyLock[K]) LockContext(ctx context.Context, key K, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e := l.acquire(key)
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, e)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// WithLock runs fn while holding the key's lock.
func (l *KeyLock[K]) WithLock(key K, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding the key's lock, giving up after timeout.
func (l *KeyLock[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if err := l.LockContext(ctx, key, timeout); err != nil {
		return err
	}
	defer l.Unlock(key)
	return fn()
}

// IsLocked is a point-in-time check for tests and diagnostics.
func (l *KeyLock[K]) IsLocked(key K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return ok && len(e.sem) == 1
}

// Len reports how many keys are currently tracked.
func (l *KeyLock[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
