package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"crosslister/internal/model"
	"crosslister/internal/monitor"
	"crosslister/internal/platform"
	"crosslister/internal/repository"
	"crosslister/pkg/limiter"
	"crosslister/pkg/lock"
	"crosslister/pkg/log"
	"crosslister/pkg/retry"
	"crosslister/pkg/utils"
)

const syncLockKey = "lock:sync"

// Conflict resolution modes
const (
	ModeManual     = "manual"
	ModeLatestWins = "latest_wins"
	ModeAutomatic  = "automatic"
)

// Report summary of one reconciliation pass
type Report struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ms"`
	Platforms   int           `json:"platforms"`
	Listings    int           `json:"listings"`
	Divergences int           `json:"divergences"`
	Applied     int           `json:"applied"`
	Kept        int           `json:"kept"`
	Pending     int           `json:"pending"`
}

// Reconciler compares stored listings against live platform state and records
// a divergence per mismatched field. Passes are serialized globally; a pass
// requested while another runs fails with ErrSyncInProgress.
type Reconciler interface {
	// RunOnce executes a single reconciliation pass
	RunOnce(ctx context.Context) (*Report, error)

	// Start runs passes on the configured interval until Stop
	Start()

	// Stop terminates the interval loop and waits for a running pass
	Stop()
}

// Config reconciler tunables
type Config struct {
	// Interval between automatic passes; zero disables the loop
	Interval time.Duration
	// Mode one of manual, latest_wins, automatic
	Mode string
	// Precedence platform order for automatic mode, highest first
	Precedence []string
	// BatchSize page size requested from platform listing endpoints; zero
	// leaves paging to the platform
	BatchSize int
	// Metrics optional metrics sink
	Metrics *monitor.MetricsCollector
	// Tracer optional tracing; nil disables spans
	Tracer *monitor.Tracer
}

// reconciler reconciler implementation
type reconciler struct {
	registry    *platform.Registry
	listings    repository.ListingRepository
	divergences repository.DivergenceRepository
	limiter     *limiter.PlatformLimiter
	policies    map[string]*retry.Policy
	locker      *lock.ListingLocker
	redis       *redis.Client

	interval   time.Duration
	mode       string
	precedence []string
	batchSize  int
	metrics    *monitor.MetricsCollector
	tracer     *monitor.Tracer

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewReconciler creates a reconciler. redisClient may be nil; then passes are
// serialized within this process only.
func NewReconciler(
	registry *platform.Registry,
	listings repository.ListingRepository,
	divergences repository.DivergenceRepository,
	rateLimiter *limiter.PlatformLimiter,
	policies map[string]*retry.Policy,
	locker *lock.ListingLocker,
	redisClient *redis.Client,
	cfg Config,
) Reconciler {
	if cfg.Mode == "" {
		cfg.Mode = ModeManual
	}
	return &reconciler{
		registry:    registry,
		listings:    listings,
		divergences: divergences,
		limiter:     rateLimiter,
		policies:    policies,
		locker:      locker,
		redis:       redisClient,
		interval:    cfg.Interval,
		mode:        cfg.Mode,
		precedence:  cfg.Precedence,
		batchSize:   cfg.BatchSize,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		stop:        make(chan struct{}),
	}
}

// Start runs passes on the configured interval until Stop
func (r *reconciler) Start() {
	if r.interval <= 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				if _, err := r.RunOnce(context.Background()); err != nil {
					log.WithError(err).Warn("Scheduled reconciliation pass failed")
				}
			}
		}
	}()
}

// Stop terminates the interval loop and waits for a running pass
func (r *reconciler) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// RunOnce executes a single reconciliation pass
func (r *reconciler) RunOnce(ctx context.Context) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, utils.ErrSyncInProgress
	}
	defer r.mu.Unlock()

	if r.redis != nil {
		syncLock := lock.NewRedisLock(r.redis, syncLockKey, 10*time.Minute)
		if err := syncLock.Lock(ctx); err != nil {
			return nil, utils.ErrSyncInProgress
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = syncLock.Unlock(releaseCtx)
		}()
	}

	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.StartSyncSpan(ctx, r.mode)
		defer span.End()
	}

	report := &Report{StartedAt: time.Now()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		if r.metrics != nil {
			r.metrics.RecordReconcilePass(report.Duration)
		}
	}()

	listings, err := r.listings.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active listings: %w", err)
	}
	report.Listings = len(listings)

	for _, name := range r.registry.Names() {
		if err := r.reconcilePlatform(ctx, name, listings, report); err != nil {
			log.WithFields(map[string]interface{}{
				"platform": name,
			}).WithError(err).Warn("Platform reconciliation skipped")
			continue
		}
		report.Platforms++
	}

	log.WithFields(map[string]interface{}{
		"platforms":   report.Platforms,
		"listings":    report.Listings,
		"divergences": report.Divergences,
		"applied":     report.Applied,
		"mode":        r.mode,
	}).Info("Reconciliation pass completed")

	return report, nil
}

// reconcilePlatform fetches one platform's snapshots and diffs every stored
// listing that carries a remote id there.
func (r *reconciler) reconcilePlatform(ctx context.Context, name string, listings []*model.ListingRecord, report *Report) error {
	adapter, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, utils.ErrPlatformUnknown)
	}

	if err := r.limiter.Wait(ctx, name); err != nil {
		return err
	}

	var snapshots []platform.Snapshot
	policy := r.policyFor(name)
	_, err := policy.Execute(ctx, func() error {
		var listErr error
		snapshots, listErr = adapter.ListRemote(ctx, platform.RemoteFilter{PageSize: r.batchSize})
		return listErr
	}, policy.Retryable)
	if err != nil {
		return fmt.Errorf("list remote %s: %w", name, err)
	}

	byRemoteID := make(map[string]platform.Snapshot, len(snapshots))
	for _, snap := range snapshots {
		byRemoteID[snap.RemoteID] = snap
	}

	for _, listing := range listings {
		remoteID, listed := listing.RemoteID(name)
		if !listed {
			continue
		}

		snap, found := byRemoteID[remoteID]
		findings := diff(name, listing, snap, found)
		if len(findings) == 0 {
			continue
		}
		if err := r.resolve(ctx, listing, findings, report); err != nil {
			return err
		}
	}

	return nil
}

// finding one divergence plus the mutation that would adopt the observed value
type finding struct {
	div   *model.SyncDivergence
	apply func(l *model.ListingRecord)
}

// diff compares one stored listing against one platform observation. An
// absent snapshot is an existence divergence; remote ids are never removed
// here, only through resolution.
func diff(name string, listing *model.ListingRecord, snap platform.Snapshot, found bool) []finding {
	if !found {
		return []finding{{
			div: &model.SyncDivergence{
				ListingID:     listing.ID,
				Platform:      name,
				Field:         model.DivergenceFieldExistence,
				StoredValue:   "listed",
				ObservedValue: "absent",
				ObservedAt:    time.Now(),
				DetectedAt:    time.Now(),
			},
			apply: func(l *model.ListingRecord) {
				l.ClearRemoteID(name)
				if !l.IsListedAnywhere() {
					l.Status = model.ListingStatusDeleted
				}
			},
		}}
	}

	var findings []finding
	if !snap.Price.Equal(listing.Price) {
		price := snap.Price
		findings = append(findings, finding{
			div: &model.SyncDivergence{
				ListingID:     listing.ID,
				Platform:      name,
				Field:         model.DivergenceFieldPrice,
				StoredValue:   listing.Price.String(),
				ObservedValue: price.String(),
				ObservedAt:    snap.ObservedAt,
				DetectedAt:    time.Now(),
			},
			apply: func(l *model.ListingRecord) { l.Price = price },
		})
	}
	if snap.Quantity != listing.Quantity {
		quantity := snap.Quantity
		findings = append(findings, finding{
			div: &model.SyncDivergence{
				ListingID:     listing.ID,
				Platform:      name,
				Field:         model.DivergenceFieldQuantity,
				StoredValue:   fmt.Sprintf("%d", listing.Quantity),
				ObservedValue: fmt.Sprintf("%d", quantity),
				ObservedAt:    snap.ObservedAt,
				DetectedAt:    time.Now(),
			},
			apply: func(l *model.ListingRecord) { l.Quantity = quantity },
		})
	}
	return findings
}

// resolve decides each finding per the configured mode, persists the
// divergence with its resolution, and applies accepted observed values under
// the listing's lock.
func (r *reconciler) resolve(ctx context.Context, listing *model.ListingRecord, findings []finding, report *Report) error {
	var accepted []finding

	for _, f := range findings {
		f.div.Mode = r.mode
		switch {
		case r.mode == ModeLatestWins && f.div.ObservedAt.After(listing.UpdatedAt):
			f.div.Resolution = model.ResolutionApplied
			accepted = append(accepted, f)
			report.Applied++
		case r.mode == ModeAutomatic && f.div.Platform == r.winnerFor(listing):
			f.div.Resolution = model.ResolutionApplied
			accepted = append(accepted, f)
			report.Applied++
		case r.mode == ModeManual:
			f.div.Resolution = model.ResolutionPending
			report.Pending++
		default:
			f.div.Resolution = model.ResolutionKept
			report.Kept++
		}

		if err := r.divergences.Create(ctx, f.div); err != nil {
			return fmt.Errorf("record divergence: %w", err)
		}
		report.Divergences++
		if r.metrics != nil {
			r.metrics.RecordDivergence(f.div.Platform, f.div.Field, model.ResolutionLabel(f.div.Resolution))
		}

		log.WithFields(map[string]interface{}{
			"listing_id": f.div.ListingID,
			"platform":   f.div.Platform,
			"field":      f.div.Field,
			"stored":     f.div.StoredValue,
			"observed":   f.div.ObservedValue,
			"resolution": f.div.Resolution,
		}).Info("Divergence detected")
	}

	if len(accepted) == 0 {
		return nil
	}

	release, err := r.locker.Acquire(ctx, listing.ID)
	if err != nil {
		return err
	}
	defer release()

	for _, f := range accepted {
		f.apply(listing)
	}
	if err := r.listings.Save(ctx, listing); err != nil {
		return fmt.Errorf("save listing %s: %w", listing.ID, err)
	}
	return nil
}

// winnerFor returns the highest-precedence platform on which the listing is
// currently listed. Only the winner's observations overwrite stored state in
// automatic mode.
func (r *reconciler) winnerFor(listing *model.ListingRecord) string {
	for _, name := range r.precedence {
		if _, ok := listing.RemoteID(name); ok {
			return name
		}
	}
	return ""
}

func (r *reconciler) policyFor(name string) *retry.Policy {
	if p, ok := r.policies[name]; ok {
		return p
	}
	p := retry.NewPolicy(3, 2)
	p.Retryable = platform.IsRetryable
	return p
}
