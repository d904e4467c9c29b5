package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bidbank/lock"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := lock.NewKeyed()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		overlap bool
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := k.WithLock(context.Background(), "user:1", func(context.Context) error {
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()

				counter++

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap)
	assert.Equal(t, 50, counter)
	assert.Zero(t, k.Held())
}

func TestKeyedIndependentKeys(t *testing.T) {
	k := lock.NewKeyed()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = k.WithLock(context.Background(), "a", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan struct{})
	go func() {
		_ = k.WithLock(context.Background(), "b", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
	close(release)
}

func TestKeyedHonoursContext(t *testing.T) {
	k := lock.NewKeyed()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = k.WithLock(context.Background(), "a", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := k.WithLock(ctx, "a", func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(release)
}

func TestKeyedPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := lock.NewKeyed().WithLock(context.Background(), "a", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNoop(t *testing.T) {
	called := false
	err := lock.Noop{}.WithLock(context.Background(), "a", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
