// Package lock serializes work per key. The bank uses it to make the
// read-old/adjust/record sequence of a transaction exclusive per account.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockTimeout is returned when the context ends while waiting for a key.
var ErrLockTimeout = errors.New("lock: wait cancelled")

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Keyed is an in-process Locker with one mutex per key. Idle keys are
// released, so memory is bounded by the number of keys in use.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyed creates an empty Keyed locker.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// WithLock implements Locker. Waiting honours ctx cancellation.
func (k *Keyed) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := k.acquire(key)
	defer k.release(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: key %s: %w", ErrLockTimeout, key, ctx.Err())
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

// Held returns the number of keys with at least one holder or waiter.
func (k *Keyed) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *Keyed) acquire(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Noop runs fn without any locking.
type Noop struct{}

// WithLock implements Locker.
func (Noop) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
