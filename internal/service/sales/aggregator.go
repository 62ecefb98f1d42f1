package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"crosslister/internal/model"
	"crosslister/internal/monitor"
	"crosslister/internal/platform"
	"crosslister/internal/repository"
	"crosslister/pkg/bloom"
	"crosslister/pkg/limiter"
	"crosslister/pkg/log"
	"crosslister/pkg/queue"
	"crosslister/pkg/retry"
)

// TopicSaleRecorded topic for newly ingested sales
const TopicSaleRecorded = "sale.recorded"

// PlatformBreakdown per-platform slice of a sales report
type PlatformBreakdown struct {
	Platform   string          `json:"platform"`
	Count      int             `json:"count"`
	Gross      decimal.Decimal `json:"gross"`
	Fees       decimal.Decimal `json:"fees"`
	Net        decimal.Decimal `json:"net"`
	FetchError string          `json:"fetch_error,omitempty"`
}

// Report sales summary for one date window
type Report struct {
	From         time.Time           `json:"from"`
	To           time.Time           `json:"to"`
	Sales        []*model.SaleRecord `json:"sales"`
	Count        int                 `json:"count"`
	Ingested     int                 `json:"ingested"`
	TotalGross   decimal.Decimal     `json:"total_gross"`
	TotalFees    decimal.Decimal     `json:"total_fees"`
	TotalNet     decimal.Decimal     `json:"total_net"`
	AverageSale  decimal.Decimal     `json:"average_sale"`
	ProfitMargin decimal.Decimal     `json:"profit_margin"`
	ByPlatform   []PlatformBreakdown `json:"by_platform"`
}

// Aggregator pulls sales from every platform for a date window, deduplicates,
// persists new ones, and builds a report ordered by sale date.
type Aggregator interface {
	// Aggregate ingests the window's sales and returns the report
	Aggregate(ctx context.Context, from, to time.Time) (*Report, error)

	// ReportFromStore builds a report from already-ingested sales only
	ReportFromStore(ctx context.Context, from, to time.Time) (*Report, error)
}

// aggregator aggregator implementation
type aggregator struct {
	registry *platform.Registry
	sales    repository.SaleRepository
	limiter  *limiter.PlatformLimiter
	policies map[string]*retry.Policy
	seen     *bloom.SeenFilter
	events   queue.Queue
	metrics  *monitor.MetricsCollector
}

// NewAggregator creates a sales aggregator. events may be nil to skip event
// publication.
func NewAggregator(
	registry *platform.Registry,
	sales repository.SaleRepository,
	rateLimiter *limiter.PlatformLimiter,
	policies map[string]*retry.Policy,
	events queue.Queue,
	metrics *monitor.MetricsCollector,
) Aggregator {
	return &aggregator{
		registry: registry,
		sales:    sales,
		limiter:  rateLimiter,
		policies: policies,
		seen:     bloom.NewSeenFilter(100000, 0.01),
		events:   events,
		metrics:  metrics,
	}
}

// Aggregate ingests the window's sales and returns the report
func (a *aggregator) Aggregate(ctx context.Context, from, to time.Time) (*Report, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date window: %s after %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	report := newReport(from, to)
	var all []*model.SaleRecord

	for _, name := range a.registry.Names() {
		fetched, err := a.fetchPlatform(ctx, name, from, to)
		if err != nil {
			log.WithFields(map[string]interface{}{
				"platform": name,
			}).WithError(err).Warn("Sales fetch skipped")
			report.ByPlatform = append(report.ByPlatform, PlatformBreakdown{Platform: name, FetchError: err.Error()})
			continue
		}

		breakdown := PlatformBreakdown{
			Platform: name,
			Gross:    decimal.Zero,
			Fees:     decimal.Zero,
			Net:      decimal.Zero,
		}
		for _, sale := range fetched {
			if err := sale.Validate(); err != nil {
				log.WithFields(map[string]interface{}{
					"platform": name,
					"sale_id":  sale.SaleID,
				}).WithError(err).Warn("Malformed sale dropped")
				continue
			}

			ingested, err := a.ingest(ctx, sale)
			if err != nil {
				return nil, err
			}
			if ingested {
				report.Ingested++
			}

			all = append(all, sale)
			breakdown.Count++
			breakdown.Gross = breakdown.Gross.Add(sale.Gross)
			breakdown.Fees = breakdown.Fees.Add(sale.Fees)
			breakdown.Net = breakdown.Net.Add(sale.Net)
		}
		report.ByPlatform = append(report.ByPlatform, breakdown)
	}

	finalize(report, all)
	return report, nil
}

// ReportFromStore builds a report from already-ingested sales only
func (a *aggregator) ReportFromStore(ctx context.Context, from, to time.Time) (*Report, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date window: %s after %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	sales, err := a.sales.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}

	report := newReport(from, to)
	byPlatform := make(map[string]*PlatformBreakdown)
	for _, sale := range sales {
		b, ok := byPlatform[sale.Platform]
		if !ok {
			b = &PlatformBreakdown{
				Platform: sale.Platform,
				Gross:    decimal.Zero,
				Fees:     decimal.Zero,
				Net:      decimal.Zero,
			}
			byPlatform[sale.Platform] = b
		}
		b.Count++
		b.Gross = b.Gross.Add(sale.Gross)
		b.Fees = b.Fees.Add(sale.Fees)
		b.Net = b.Net.Add(sale.Net)
	}

	platforms := make([]string, 0, len(byPlatform))
	for name := range byPlatform {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	for _, name := range platforms {
		report.ByPlatform = append(report.ByPlatform, *byPlatform[name])
	}

	finalize(report, sales)
	return report, nil
}

// fetchPlatform pulls one platform's sales under its limiter and retry policy.
func (a *aggregator) fetchPlatform(ctx context.Context, name string, from, to time.Time) ([]*model.SaleRecord, error) {
	adapter, ok := a.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("no adapter for %s", name)
	}

	if err := a.limiter.Wait(ctx, name); err != nil {
		return nil, err
	}

	var sales []*model.SaleRecord
	policy := a.policyFor(name)
	_, err := policy.Execute(ctx, func() error {
		var listErr error
		sales, listErr = adapter.ListSales(ctx, from, to)
		return listErr
	}, policy.Retryable)
	return sales, err
}

// ingest stores a sale unless it was already recorded. The bloom filter only
// prefilters lookups; the store's insert result is authoritative, so a sale
// persisted before a restart never counts or publishes twice.
func (a *aggregator) ingest(ctx context.Context, sale *model.SaleRecord) (bool, error) {
	key := bloom.Key(sale.Platform, sale.SaleID)

	if a.seen.MaybeSeen(key) {
		exists, err := a.sales.Exists(ctx, sale.Platform, sale.SaleID)
		if err != nil {
			return false, fmt.Errorf("check sale %s: %w", key, err)
		}
		if exists {
			return false, nil
		}
	}

	inserted, err := a.sales.Append(ctx, sale)
	if err != nil {
		return false, fmt.Errorf("append sale %s: %w", key, err)
	}
	a.seen.Mark(key)
	if !inserted {
		return false, nil
	}
	if a.metrics != nil {
		a.metrics.RecordSaleIngested(sale.Platform)
	}

	a.publish(ctx, sale)
	return true, nil
}

func (a *aggregator) publish(ctx context.Context, sale *model.SaleRecord) {
	if a.events == nil {
		return
	}

	payload, err := json.Marshal(sale)
	if err != nil {
		log.WithError(err).Error("Marshal sale event")
		return
	}
	if err := a.events.Publish(ctx, TopicSaleRecorded, payload); err != nil {
		log.WithFields(map[string]interface{}{
			"platform": sale.Platform,
			"sale_id":  sale.SaleID,
		}).WithError(err).Warn("Sale event not published")
	}
}

func (a *aggregator) policyFor(name string) *retry.Policy {
	if p, ok := a.policies[name]; ok {
		return p
	}
	p := retry.NewPolicy(3, 2)
	p.Retryable = platform.IsRetryable
	return p
}

func newReport(from, to time.Time) *Report {
	return &Report{
		From:         from,
		To:           to,
		TotalGross:   decimal.Zero,
		TotalFees:    decimal.Zero,
		TotalNet:     decimal.Zero,
		AverageSale:  decimal.Zero,
		ProfitMargin: decimal.Zero,
	}
}

// finalize orders sales by date and derives the report totals.
func finalize(report *Report, sales []*model.SaleRecord) {
	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].SaleDate.Before(sales[j].SaleDate)
	})

	report.Sales = sales
	report.Count = len(sales)
	for _, sale := range sales {
		report.TotalGross = report.TotalGross.Add(sale.Gross)
		report.TotalFees = report.TotalFees.Add(sale.Fees)
		report.TotalNet = report.TotalNet.Add(sale.Net)
	}
	if report.Count > 0 {
		report.AverageSale = report.TotalGross.Div(decimal.NewFromInt(int64(report.Count))).Round(2)
	}
	if report.TotalGross.IsPositive() {
		report.ProfitMargin = report.TotalNet.Div(report.TotalGross).Mul(decimal.NewFromInt(100)).Round(2)
	}
}
