package platform

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"crosslister/internal/model"
)

// Adapter uniform capability contract implemented once per marketplace.
// Every method returns classified *Error failures so callers can decide on
// retries without knowing the platform's wire format.
type Adapter interface {
	// Name returns the platform key used in configuration and remote-id maps.
	Name() string

	// Authenticate establishes or refreshes credentials. Idempotent; may be a
	// no-op after the first success until the platform signals expiry.
	Authenticate(ctx context.Context) error

	// Create publishes the listing and returns the platform's remote id.
	// Platforms with multi-phase creation must be atomic from the caller's
	// view: either a usable remote id comes back or nothing was left behind.
	Create(ctx context.Context, listing *model.ListingRecord) (string, error)

	// Update applies partial fields to an existing remote listing.
	Update(ctx context.Context, remoteID string, fields *model.ListingUpdate) error

	// Delete removes a remote listing.
	Delete(ctx context.Context, remoteID string) error

	// ListRemote fetches current listing snapshots, paginated internally.
	ListRemote(ctx context.Context, filter RemoteFilter) ([]Snapshot, error)

	// ListSales fetches sales in the window. Platforms without a sales API
	// return an empty slice, not an error.
	ListSales(ctx context.Context, from, to time.Time) ([]*model.SaleRecord, error)

	// HealthCheck probes the platform API.
	HealthCheck(ctx context.Context) error
}

// RemoteFilter narrows a ListRemote call
type RemoteFilter struct {
	Status   string
	PageSize int
}

// Snapshot one remote listing observation used for reconciliation
type Snapshot struct {
	RemoteID   string
	Title      string
	Price      decimal.Decimal
	Quantity   int
	ObservedAt time.Time
}
