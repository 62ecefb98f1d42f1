package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct {
	status int
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("status %d", e.status)
}

// statusSequence returns an op that fails with the given statuses in order,
// then succeeds once the sequence is exhausted (status 200).
func statusSequence(calls *int, statuses ...int) func() error {
	i := 0
	return func() error {
		*calls++
		if i >= len(statuses) {
			return nil
		}
		s := statuses[i]
		i++
		if s == 200 {
			return nil
		}
		return &statusErr{status: s}
	}
}

func retryOnDefault(err error) bool {
	var se *statusErr
	if !errors.As(err, &se) {
		return false
	}
	switch se.status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func noSleep(p *Policy) *Policy {
	p.Sleep = func(time.Duration) {}
	return p
}

func TestPolicy_SucceedsAfterRetryableFailures(t *testing.T) {
	// [429, 429, 200] with budget 3: exactly 3 calls, success.
	p := noSleep(NewPolicy(3, 2))
	calls := 0

	attempts, err := p.Execute(context.Background(), statusSequence(&calls, 429, 429, 200), retryOnDefault)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestPolicy_ExhaustsBudget(t *testing.T) {
	// [500, 500, 500, 500] with budget 3: 1 initial + 3 retries, never a 5th.
	p := noSleep(NewPolicy(3, 2))
	calls := 0

	attempts, err := p.Execute(context.Background(), statusSequence(&calls, 500, 500, 500, 500), retryOnDefault)

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)

	var se *statusErr
	assert.True(t, errors.As(err, &se), "terminal error carries the last failure")
	assert.Equal(t, 500, se.status)
}

func TestPolicy_NonRetryableFailsImmediately(t *testing.T) {
	p := noSleep(NewPolicy(3, 2))
	calls := 0

	attempts, err := p.Execute(context.Background(), statusSequence(&calls, 404, 200), retryOnDefault)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestPolicy_ExponentialBackoff(t *testing.T) {
	var waits []time.Duration
	p := NewPolicy(3, 2)
	p.BackoffUnit = time.Second
	p.Sleep = func(d time.Duration) { waits = append(waits, d) }
	calls := 0

	_, err := p.Execute(context.Background(), statusSequence(&calls, 503, 503, 503, 503), retryOnDefault)

	assert.Error(t, err)
	// backoff_factor^attempt, attempt starting at 0: 1s, 2s, 4s
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestPolicy_BackoffCap(t *testing.T) {
	p := NewPolicy(1, 2)
	assert.Equal(t, time.Second, p.backoff(0))
	p.MaxBackoff = 3 * time.Second
	assert.Equal(t, 3*time.Second, p.backoff(10))
}

func TestPolicy_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(5, 2)
	p.Sleep = func(time.Duration) { cancel() }
	calls := 0

	attempts, err := p.Execute(ctx, statusSequence(&calls, 500, 500, 500), retryOnDefault)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls, "no further calls after cancellation")
}

func TestPolicy_ZeroRetriesMakesOneCall(t *testing.T) {
	p := noSleep(NewPolicy(0, 2))
	calls := 0

	attempts, err := p.Execute(context.Background(), statusSequence(&calls, 500), retryOnDefault)

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_NilClassifierRetriesEverything(t *testing.T) {
	p := noSleep(NewPolicy(2, 2))
	calls := 0

	attempts, err := p.Execute(context.Background(), statusSequence(&calls, 404, 200), nil)

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
