package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Policy bounded retry with exponential backoff
type Policy struct {
	// MaxRetries maximum retries after the initial attempt
	MaxRetries int
	// BackoffFactor base of the exponential backoff (factor^attempt units)
	BackoffFactor float64
	// BackoffUnit one backoff time unit
	BackoffUnit time.Duration
	// MaxBackoff upper bound for a single wait
	MaxBackoff time.Duration

	// Retryable default classifier applied when Execute receives none
	Retryable Classifier

	// Sleep when set replaces the context-aware wait, for tests
	Sleep func(d time.Duration)
}

// NewPolicy creates a retry policy with sane defaults for zero values.
func NewPolicy(maxRetries int, backoffFactor float64) *Policy {
	p := &Policy{
		MaxRetries:    maxRetries,
		BackoffFactor: backoffFactor,
	}
	p.fillDefaults()
	return p
}

func (p *Policy) fillDefaults() {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2.0
	}
	if p.BackoffUnit <= 0 {
		p.BackoffUnit = time.Second
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 60 * time.Second
	}
}

// Execute runs op, retrying while retryable says so and the budget lasts.
// Returns the number of calls actually made. Non-retryable failures and
// exhausted budgets propagate the last error immediately; the operation is
// never called again after MaxRetries retries.
func (p *Policy) Execute(ctx context.Context, op func() error, retryable Classifier) (int, error) {
	p.fillDefaults()
	if retryable == nil {
		retryable = p.Retryable
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempts, fmt.Errorf("cancelled after %d attempts: %w", attempts, lastErr)
			}
			return attempts, err
		}

		attempts++
		err := op()
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return attempts, err
		}
		if attempt == p.MaxRetries {
			break
		}

		wait := p.backoff(attempt)
		if !p.sleepCtx(ctx, wait) {
			return attempts, fmt.Errorf("cancelled after %d attempts: %w", attempts, lastErr)
		}
	}

	return attempts, fmt.Errorf("retry budget exhausted after %d attempts: %w", attempts, lastErr)
}

// backoff returns factor^attempt units capped at MaxBackoff, attempt from 0.
func (p *Policy) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(p.BackoffFactor, float64(attempt)) * float64(p.BackoffUnit))
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// sleepCtx waits for d unless ctx is cancelled first.
func (p *Policy) sleepCtx(ctx context.Context, d time.Duration) bool {
	if p.Sleep != nil {
		p.Sleep(d)
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
