package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformLimiter_BurstThenDeny(t *testing.T) {
	l := NewPlatformLimiter()
	l.Configure("mercari", Config{RequestsPerMinute: 60, BurstLimit: 5})

	// Full burst is admitted immediately once warmed up.
	for i := 0; i < 5; i++ {
		assert.NoError(t, l.Allow("mercari"), "burst token %d", i+1)
	}

	// The 6th acquisition inside the window is rejected.
	err := l.Allow("mercari")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestPlatformLimiter_BucketsAreIndependent(t *testing.T) {
	l := NewPlatformLimiter()
	l.Configure("mercari", Config{RequestsPerMinute: 60, BurstLimit: 1})
	l.Configure("vinted", Config{RequestsPerMinute: 60, BurstLimit: 1})

	assert.NoError(t, l.Allow("mercari"))
	assert.Error(t, l.Allow("mercari"))

	// Draining mercari's bucket must not touch vinted's.
	assert.NoError(t, l.Allow("vinted"))
}

func TestPlatformLimiter_UnconfiguredPlatformPassesThrough(t *testing.T) {
	l := NewPlatformLimiter()

	assert.NoError(t, l.Allow("unknown"))
	assert.NoError(t, l.Wait(context.Background(), "unknown"))
}

func TestPlatformLimiter_WaitHonorsContext(t *testing.T) {
	l := NewPlatformLimiter()
	l.Configure("vinted", Config{RequestsPerMinute: 1, BurstLimit: 1})
	require.NoError(t, l.Allow("vinted"))

	// Next token is a minute away; the wait must end with the context.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "vinted")
	assert.Error(t, err)
}

func TestPlatformLimiter_ConcurrentAcquisitionsNeverOverspend(t *testing.T) {
	l := NewPlatformLimiter()
	l.Configure("mercari", Config{RequestsPerMinute: 60, BurstLimit: 10})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("mercari") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, admitted, 10, "no more than burst_limit admissions in a burst")
	assert.Greater(t, admitted, 0)
}

func TestPlatformLimiter_ReserveReportsDelay(t *testing.T) {
	l := NewPlatformLimiter()
	l.Configure("vinted", Config{RequestsPerMinute: 60, BurstLimit: 1})

	assert.Equal(t, time.Duration(0), l.Reserve("unknown"))

	require.NoError(t, l.Allow("vinted"))
	assert.Greater(t, l.Reserve("vinted"), time.Duration(0))
}

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

func TestSlidingWindowLimiter(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("AllowWithinLimit", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, 5, time.Minute)

		for i := 0; i < 5; i++ {
			allowed, err := l.Allow(ctx, fmt.Sprintf("client_%d", i))
			assert.NoError(t, err)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}
	})

	t.Run("RejectAfterLimit", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, 1, time.Minute)

		allowed, err := l.Allow(ctx, "reject_client")
		assert.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = l.Allow(ctx, "reject_client")
		assert.NoError(t, err)
		assert.False(t, allowed, "2nd request should be rejected")
	})

	t.Run("DifferentKeys", func(t *testing.T) {
		l := NewSlidingWindowLimiter(client, 2, time.Minute)

		for _, key := range []string{"key1", "key2"} {
			allowed, err := l.Allow(ctx, key)
			assert.NoError(t, err)
			assert.True(t, allowed)
		}
	})
}
