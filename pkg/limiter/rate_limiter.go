package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrRateLimited returned by non-blocking acquisition when no token is available
var ErrRateLimited = errors.New("rate limit exceeded")

// Config per-platform token bucket configuration
type Config struct {
	// RequestsPerMinute continuous refill rate
	RequestsPerMinute int
	// BurstLimit bucket capacity
	BurstLimit int
}

// PlatformLimiter holds one token bucket per platform. Buckets refill
// continuously at requests_per_minute/60 tokens per second and never exceed
// their burst capacity. Token accounting is serialized inside x/time/rate, so
// concurrent acquisitions for the same platform cannot double-spend.
type PlatformLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// NewPlatformLimiter creates an empty limiter registry.
func NewPlatformLimiter() *PlatformLimiter {
	return &PlatformLimiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Configure installs or replaces a platform's bucket.
func (l *PlatformLimiter) Configure(platform string, cfg Config) {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[platform] = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.BurstLimit)
}

// Wait blocks the calling goroutine until a token is available for the
// platform, or the context is cancelled. Unconfigured platforms pass through.
func (l *PlatformLimiter) Wait(ctx context.Context, platform string) error {
	bucket := l.bucket(platform)
	if bucket == nil {
		return nil
	}
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", platform, err)
	}
	return nil
}

// Allow is the non-blocking acquisition; it fails with ErrRateLimited when the
// platform's bucket is empty.
func (l *PlatformLimiter) Allow(platform string) error {
	bucket := l.bucket(platform)
	if bucket == nil {
		return nil
	}
	if !bucket.Allow() {
		return fmt.Errorf("%s: %w", platform, ErrRateLimited)
	}
	return nil
}

// Reserve exposes the expected wait for the next token, for metrics.
func (l *PlatformLimiter) Reserve(platform string) time.Duration {
	bucket := l.bucket(platform)
	if bucket == nil {
		return 0
	}
	r := bucket.Reserve()
	defer r.Cancel()
	return r.Delay()
}

func (l *PlatformLimiter) bucket(platform string) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buckets[platform]
}

// SlidingWindowLimiter sliding window rate limiter using Redis, used by the
// HTTP middleware to bound inbound request rates per client
type SlidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(client *redis.Client, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow checks if the request is allowed
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()
	windowStart := now - l.window.Milliseconds()

	rateLimitKey := fmt.Sprintf("rate_limit:%s", key)

	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local window_seconds = tonumber(ARGV[4])

		-- Remove expired entries
		redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

		-- Get current count in window
		local current = redis.call('ZCARD', key)

		if current < limit then
			-- Add current request
			redis.call('ZADD', key, now, now)
			redis.call('EXPIRE', key, window_seconds)
			return 1
		else
			return 0
		end
	`

	result, err := l.client.Eval(ctx, script,
		[]string{rateLimitKey},
		now,
		windowStart,
		l.limit,
		int(l.window.Seconds())).Int()

	if err != nil {
		return false, err
	}

	return result == 1, nil
}
