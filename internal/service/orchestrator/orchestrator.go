package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"crosslister/internal/model"
	"crosslister/internal/monitor"
	"crosslister/internal/platform"
	"crosslister/internal/repository"
	"crosslister/pkg/breaker"
	"crosslister/pkg/limiter"
	"crosslister/pkg/lock"
	"crosslister/pkg/log"
	"crosslister/pkg/retry"
	"crosslister/pkg/utils"
)

// Overall status of one logical operation across all targeted platforms.
const (
	StatusAllSucceeded = "all_succeeded"
	StatusPartial      = "partial"
	StatusAllFailed    = "all_failed"
)

// Outcome one platform's result for one operation, immutable once produced
type Outcome struct {
	Platform  string        `json:"platform"`
	Succeeded bool          `json:"succeeded"`
	RemoteID  string        `json:"remote_id,omitempty"`
	ErrKind   platform.Kind `json:"error_kind,omitempty"`
	Err       error         `json:"-"`
	ErrDetail string        `json:"error,omitempty"`
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
	Retries   int           `json:"retries"`
}

// Result all platform outcomes for one logical operation. Every targeted
// platform appears exactly once, failures included.
type Result struct {
	ListingID string    `json:"listing_id"`
	Outcomes  []Outcome `json:"outcomes"`
	Status    string    `json:"status"`
}

// Orchestrator fans one logical listing operation out to every targeted
// platform and aggregates per-platform outcomes. Partial failure is a normal
// result, not an error.
type Orchestrator interface {
	// CreateListing validates locally, then publishes to each platform
	CreateListing(ctx context.Context, listing *model.ListingRecord, platforms []string) (*Result, error)

	// UpdateListing applies partial fields on each platform holding a remote id
	UpdateListing(ctx context.Context, listingID string, fields *model.ListingUpdate, platforms []string) (*Result, error)

	// DeleteListing retires the listing from each platform
	DeleteListing(ctx context.Context, listingID string, platforms []string) (*Result, error)

	// Health probes every registered platform
	Health(ctx context.Context) map[string]error
}

// Config orchestrator tunables
type Config struct {
	// MaxWorkers bound on concurrent platform dispatches per operation
	MaxWorkers int
	// OperationTimeout optional global bound; zero means no timeout beyond
	// the per-call retry budgets
	OperationTimeout time.Duration
	// MaxPhotos listing photo bound enforced before any network call
	MaxPhotos int
	// Metrics optional metrics sink
	Metrics *monitor.MetricsCollector
	// Tracer optional tracing; nil disables spans
	Tracer *monitor.Tracer
}

// orchestrator orchestrator implementation
type orchestrator struct {
	registry *platform.Registry
	listings repository.ListingRepository
	limiter  *limiter.PlatformLimiter
	breakers *breaker.Manager
	policies map[string]*retry.Policy
	locker   *lock.ListingLocker

	maxWorkers int
	opTimeout  time.Duration
	maxPhotos  int
	metrics    *monitor.MetricsCollector
	tracer     *monitor.Tracer
}

// NewOrchestrator creates an orchestrator. policies is keyed by platform
// name; platforms without an entry get a default policy.
func NewOrchestrator(
	registry *platform.Registry,
	listings repository.ListingRepository,
	rateLimiter *limiter.PlatformLimiter,
	breakers *breaker.Manager,
	policies map[string]*retry.Policy,
	locker *lock.ListingLocker,
	cfg Config,
) Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 3
	}
	if cfg.MaxPhotos <= 0 {
		cfg.MaxPhotos = 10
	}
	return &orchestrator{
		registry:   registry,
		listings:   listings,
		limiter:    rateLimiter,
		breakers:   breakers,
		policies:   policies,
		locker:     locker,
		maxWorkers: cfg.MaxWorkers,
		opTimeout:  cfg.OperationTimeout,
		maxPhotos:  cfg.MaxPhotos,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}
}

// CreateListing validates locally, then publishes to each platform
func (o *orchestrator) CreateListing(ctx context.Context, listing *model.ListingRecord, platforms []string) (*Result, error) {
	if err := listing.Validate(o.maxPhotos); err != nil {
		return nil, fmt.Errorf("listing validation: %w", err)
	}
	if len(platforms) == 0 {
		platforms = o.registry.Names()
	}

	release, err := o.locker.Acquire(ctx, listing.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	outcomes := o.fanOut(ctx, "create", listing.ID, platforms, func(ctx context.Context, a platform.Adapter) (string, error) {
		return a.Create(ctx, listing)
	})

	for _, out := range outcomes {
		if out.Succeeded {
			listing.SetRemoteID(out.Platform, out.RemoteID)
		}
	}

	result := newResult(listing.ID, outcomes)
	if err := o.listings.Save(ctx, listing); err != nil {
		return result, fmt.Errorf("save listing %s: %w", listing.ID, err)
	}

	o.logResult("create", result)
	return result, nil
}

// UpdateListing applies partial fields on each platform holding a remote id
func (o *orchestrator) UpdateListing(ctx context.Context, listingID string, fields *model.ListingUpdate, platforms []string) (*Result, error) {
	release, err := o.locker.Acquire(ctx, listingID)
	if err != nil {
		return nil, err
	}
	defer release()

	listing, err := o.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		platforms = o.registry.Names()
	}

	listed, skipped := o.splitByRemoteID(listing, platforms)

	outcomes := o.fanOut(ctx, "update", listingID, listed, func(ctx context.Context, a platform.Adapter) (string, error) {
		remoteID, _ := listing.RemoteID(a.Name())
		return "", a.Update(ctx, remoteID, fields)
	})
	outcomes = append(outcomes, skipped...)

	result := newResult(listingID, outcomes)
	if anySucceeded(outcomes) {
		fields.Apply(listing)
		if err := o.listings.Save(ctx, listing); err != nil {
			return result, fmt.Errorf("save listing %s: %w", listingID, err)
		}
	}

	o.logResult("update", result)
	return result, nil
}

// DeleteListing retires the listing from each platform
func (o *orchestrator) DeleteListing(ctx context.Context, listingID string, platforms []string) (*Result, error) {
	release, err := o.locker.Acquire(ctx, listingID)
	if err != nil {
		return nil, err
	}
	defer release()

	listing, err := o.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		platforms = o.registry.Names()
	}

	listed, skipped := o.splitByRemoteID(listing, platforms)

	outcomes := o.fanOut(ctx, "delete", listingID, listed, func(ctx context.Context, a platform.Adapter) (string, error) {
		remoteID, _ := listing.RemoteID(a.Name())
		return "", a.Delete(ctx, remoteID)
	})
	outcomes = append(outcomes, skipped...)

	for _, out := range outcomes {
		if out.Succeeded {
			listing.ClearRemoteID(out.Platform)
		}
	}
	if !listing.IsListedAnywhere() {
		listing.Status = model.ListingStatusDeleted
	}

	result := newResult(listingID, outcomes)
	if err := o.listings.Save(ctx, listing); err != nil {
		return result, fmt.Errorf("save listing %s: %w", listingID, err)
	}

	o.logResult("delete", result)
	return result, nil
}

// Health probes every registered platform
func (o *orchestrator) Health(ctx context.Context) map[string]error {
	adapters := o.registry.All()

	var mu sync.Mutex
	health := make(map[string]error, len(adapters))

	var wg sync.WaitGroup
	for name, adapter := range adapters {
		wg.Add(1)
		go func(name string, adapter platform.Adapter) {
			defer wg.Done()
			err := adapter.HealthCheck(ctx)
			mu.Lock()
			health[name] = err
			mu.Unlock()
		}(name, adapter)
	}
	wg.Wait()

	return health
}

// fanOut dispatches call to every named platform concurrently, bounded by
// maxWorkers. One outcome always comes back per platform; one platform's
// failure never cancels another's in-flight call.
func (o *orchestrator) fanOut(ctx context.Context, op, listingID string, platforms []string, call func(ctx context.Context, a platform.Adapter) (string, error)) []Outcome {
	if len(platforms) == 0 {
		return nil
	}

	if o.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opTimeout)
		defer cancel()
	}

	outcomes := make([]Outcome, len(platforms))
	sem := make(chan struct{}, o.maxWorkers)

	var wg sync.WaitGroup
	for i, name := range platforms {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = o.dispatch(ctx, op, listingID, name, call)
		}(i, name)
	}
	wg.Wait()

	return outcomes
}

// dispatch runs one platform's call sequence: limiter wait, then the
// breaker-guarded adapter call under the platform's retry policy.
func (o *orchestrator) dispatch(ctx context.Context, op, listingID, name string, call func(ctx context.Context, a platform.Adapter) (string, error)) Outcome {
	out := Outcome{Platform: name}
	start := time.Now()
	defer func() {
		out.Latency = time.Since(start)
		out.LatencyMS = out.Latency.Milliseconds()
		o.recordDispatch(op, name, &out)
	}()

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartPlatformSpan(ctx, name, op, listingID)
		defer span.End()
	}

	adapter, ok := o.registry.Get(name)
	if !ok {
		out.Err = fmt.Errorf("%s: %w", name, utils.ErrPlatformUnknown)
		out.ErrKind = platform.KindFatal
		out.ErrDetail = out.Err.Error()
		return out
	}

	waitStart := time.Now()
	if err := o.limiter.Wait(ctx, name); err != nil {
		out.Err = err
		out.ErrKind = platform.KindOf(err)
		out.ErrDetail = err.Error()
		return out
	}
	if o.metrics != nil {
		o.metrics.RecordRateLimiterWait(name, time.Since(waitStart))
	}

	var remoteID string
	policy := o.policyFor(name)
	attempts, err := policy.Execute(ctx, func() error {
		return o.breakers.Execute(ctx, name, func() error {
			id, callErr := call(ctx, adapter)
			if callErr != nil {
				return callErr
			}
			remoteID = id
			return nil
		})
	}, retryableFor(policy))

	if attempts > 0 {
		out.Retries = attempts - 1
	}
	if err != nil {
		out.Err = err
		out.ErrKind = classify(err)
		out.ErrDetail = err.Error()
		log.WithFields(map[string]interface{}{
			"operation": op,
			"platform":  name,
			"kind":      out.ErrKind,
			"retries":   out.Retries,
		}).Warn("Platform dispatch failed")
		return out
	}

	out.Succeeded = true
	out.RemoteID = remoteID
	return out
}

// splitByRemoteID separates platforms with a confirmed remote id from the
// rest, which get a NotListed outcome instead of a network call.
func (o *orchestrator) splitByRemoteID(listing *model.ListingRecord, platforms []string) ([]string, []Outcome) {
	var listed []string
	var skipped []Outcome
	for _, name := range platforms {
		if _, ok := listing.RemoteID(name); ok {
			listed = append(listed, name)
			continue
		}
		skipped = append(skipped, Outcome{
			Platform:  name,
			ErrKind:   platform.KindNotListed,
			Err:       platform.NewError(name, platform.KindNotListed, "no remote id recorded"),
			ErrDetail: fmt.Sprintf("%s: no remote id recorded", name),
		})
	}
	return listed, skipped
}

func (o *orchestrator) policyFor(name string) *retry.Policy {
	if p, ok := o.policies[name]; ok {
		return p
	}
	return retry.NewPolicy(3, 2)
}

// recordDispatch emits per-call metrics for one platform outcome.
func (o *orchestrator) recordDispatch(op, name string, out *Outcome) {
	if o.metrics == nil {
		return
	}
	status := "success"
	if !out.Succeeded {
		status = "error"
	}
	o.metrics.RecordPlatformCall(name, op, status)
	o.metrics.RecordPlatformCallDuration(name, op, out.Latency)
	o.metrics.RecordPlatformRetries(name, op, out.Retries)
}

func (o *orchestrator) logResult(op string, result *Result) {
	succeeded := 0
	for _, out := range result.Outcomes {
		if out.Succeeded {
			succeeded++
		}
	}
	if o.metrics != nil {
		o.metrics.RecordListingOperation(op, result.Status)
	}
	log.WithFields(map[string]interface{}{
		"operation":  op,
		"listing_id": result.ListingID,
		"status":     result.Status,
		"platforms":  len(result.Outcomes),
		"succeeded":  succeeded,
	}).Info("Listing operation completed")
}

// retryableFor composes the policy's status allow-list with the breaker
// guard. An open circuit fails fast instead of burning the retry budget.
func retryableFor(p *retry.Policy) retry.Classifier {
	return func(err error) bool {
		if breaker.IsCircuitBreakerError(err) {
			return false
		}
		if p.Retryable != nil {
			return p.Retryable(err)
		}
		return platform.IsRetryable(err)
	}
}

func classify(err error) platform.Kind {
	if breaker.IsCircuitBreakerError(err) {
		return platform.KindTransient
	}
	return platform.KindOf(err)
}

func newResult(listingID string, outcomes []Outcome) *Result {
	return &Result{
		ListingID: listingID,
		Outcomes:  outcomes,
		Status:    statusOf(outcomes),
	}
}

func anySucceeded(outcomes []Outcome) bool {
	for _, out := range outcomes {
		if out.Succeeded {
			return true
		}
	}
	return false
}

func statusOf(outcomes []Outcome) string {
	succeeded := 0
	for _, out := range outcomes {
		if out.Succeeded {
			succeeded++
		}
	}
	switch {
	case len(outcomes) == 0 || succeeded == len(outcomes):
		return StatusAllSucceeded
	case succeeded == 0:
		return StatusAllFailed
	default:
		return StatusPartial
	}
}
