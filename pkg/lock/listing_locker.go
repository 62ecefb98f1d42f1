package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListingLocker serializes mutations per listing. Concurrent work on
// different listings proceeds independently. A local mutex guards goroutines
// in this process; when a Redis client is supplied, a distributed lock guards
// other processes as well.
type ListingLocker struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]*lockEntry
}

// lockEntry per-listing mutex with a holder/waiter count. Entries leave the
// map once the last holder releases, so the map never grows with the number
// of listings ever touched.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewListingLocker creates a listing locker. client may be nil for a purely
// in-process lock.
func NewListingLocker(client *redis.Client, ttl time.Duration) *ListingLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ListingLocker{
		client: client,
		ttl:    ttl,
		local:  make(map[string]*lockEntry),
	}
}

// Acquire takes the listing's lock and returns a release function. Release
// must be called exactly once.
func (l *ListingLocker) Acquire(ctx context.Context, listingID string) (func(), error) {
	entry := l.retain(listingID)
	entry.mu.Lock()

	if l.client == nil {
		return func() {
			entry.mu.Unlock()
			l.release(listingID)
		}, nil
	}

	rl := NewRedisLock(l.client, fmt.Sprintf("lock:listing:%s", listingID), l.ttl)
	if err := rl.TryLock(ctx, 10, 100*time.Millisecond); err != nil {
		entry.mu.Unlock()
		l.release(listingID)
		return nil, fmt.Errorf("acquire listing lock %s: %w", listingID, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rl.Unlock(releaseCtx)
		entry.mu.Unlock()
		l.release(listingID)
	}, nil
}

// WithLock runs fn while holding the listing's lock.
func (l *ListingLocker) WithLock(ctx context.Context, listingID string, fn func() error) error {
	release, err := l.Acquire(ctx, listingID)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

func (l *ListingLocker) retain(listingID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.local[listingID]
	if !ok {
		entry = &lockEntry{}
		l.local[listingID] = entry
	}
	entry.refs++
	return entry
}

func (l *ListingLocker) release(listingID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.local[listingID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.local, listingID)
	}
}
