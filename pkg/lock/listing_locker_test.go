package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingLocker_EvictsReleasedEntries(t *testing.T) {
	locker := NewListingLocker(nil, time.Minute)

	for i := 0; i < 100; i++ {
		release, err := locker.Acquire(context.Background(), fmt.Sprintf("item-%03d", i))
		require.NoError(t, err)
		release()
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.local, "released entries leave the map")
}

func TestListingLocker_KeepsEntryWhileContended(t *testing.T) {
	locker := NewListingLocker(nil, time.Minute)

	release, err := locker.Acquire(context.Background(), "item-001")
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		second, err := locker.Acquire(context.Background(), "item-001")
		assert.NoError(t, err)
		acquired <- second
	}()

	// Let the second acquirer queue on the entry.
	time.Sleep(20 * time.Millisecond)
	locker.mu.Lock()
	assert.Len(t, locker.local, 1, "contended entry survives until the last release")
	locker.mu.Unlock()

	release()
	secondRelease := <-acquired
	secondRelease()

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.local)
}
