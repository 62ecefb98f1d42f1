package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client
}

func TestRedisLock_LockUnlock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "lock:test", time.Minute)
	require.NoError(t, l.Lock(ctx))

	held, err := l.IsHeld(ctx)
	assert.NoError(t, err)
	assert.True(t, held)

	assert.NoError(t, l.Unlock(ctx))

	held, err = l.IsHeld(ctx)
	assert.NoError(t, err)
	assert.False(t, held)
}

func TestRedisLock_SecondHolderBlocked(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "lock:contended", time.Minute)
	require.NoError(t, first.Lock(ctx))

	second := NewRedisLock(client, "lock:contended", time.Minute)
	err := second.Lock(ctx)
	assert.True(t, errors.Is(err, ErrLockFailed))

	// A non-holder cannot release someone else's lock.
	assert.True(t, errors.Is(second.Unlock(ctx), ErrLockNotHeld))

	// The real holder still can.
	assert.NoError(t, first.Unlock(ctx))
}

func TestRedisLock_Extend(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "lock:extend", time.Minute)
	require.NoError(t, l.Lock(ctx))
	assert.NoError(t, l.Extend(ctx, 2*time.Minute))

	other := NewRedisLock(client, "lock:extend", time.Minute)
	assert.True(t, errors.Is(other.Extend(ctx, time.Minute), ErrLockNotHeld))
}

func TestListingLocker_SerializesSameListing(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewListingLocker(client, time.Minute)

	var mu sync.Mutex
	var inside int
	var maxInside int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "item-001", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "critical section for one listing never overlaps")
}

func TestListingLocker_DifferentListingsIndependent(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewListingLocker(client, time.Minute)

	err := locker.WithLock(ctx, "item-a", func() error {
		// Holding item-a must not block item-b.
		return locker.WithLock(ctx, "item-b", func() error { return nil })
	})
	assert.NoError(t, err)
}
