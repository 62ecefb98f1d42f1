package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// SyncDivergence one mismatch between stored state and a platform's observed
// state for a single field of a single listing
type SyncDivergence struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID     string    `gorm:"type:varchar(32);not null;index" json:"listing_id"`
	Platform      string    `gorm:"type:varchar(32);not null;index" json:"platform"`
	Field         string    `gorm:"type:varchar(20);not null" json:"field"`
	StoredValue   string    `gorm:"type:varchar(255)" json:"stored_value"`
	ObservedValue string    `gorm:"type:varchar(255)" json:"observed_value"`
	ObservedAt    time.Time `gorm:"type:timestamp;not null" json:"observed_at"`
	Resolution    int8      `gorm:"type:tinyint;not null;default:1;index" json:"resolution"`
	Mode          string    `gorm:"type:varchar(20);not null" json:"mode"`
	DetectedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"detected_at"`
}

// TableName set name
func (SyncDivergence) TableName() string {
	return "sync_divergences"
}

// Diverged fields
const (
	DivergenceFieldPrice     = "price"
	DivergenceFieldQuantity  = "quantity"
	DivergenceFieldExistence = "existence"
)

// Resolution states. Pending divergences wait for an operator in manual mode;
// Applied means the observed value overwrote the stored one; Kept means the
// stored value won.
const (
	ResolutionPending = 1
	ResolutionApplied = 2
	ResolutionKept    = 3
)

// IsPending reports whether the divergence still needs a decision.
func (d *SyncDivergence) IsPending() bool {
	return d.Resolution == ResolutionPending
}

// ApplyTo mutates the listing with the divergence's observed value. The
// caller holds the listing's lock and persists the result.
func (d *SyncDivergence) ApplyTo(l *ListingRecord) error {
	switch d.Field {
	case DivergenceFieldPrice:
		price, err := decimal.NewFromString(d.ObservedValue)
		if err != nil {
			return fmt.Errorf("parse observed price %q: %w", d.ObservedValue, err)
		}
		l.Price = price
	case DivergenceFieldQuantity:
		quantity, err := strconv.Atoi(d.ObservedValue)
		if err != nil {
			return fmt.Errorf("parse observed quantity %q: %w", d.ObservedValue, err)
		}
		l.Quantity = quantity
	case DivergenceFieldExistence:
		if d.ObservedValue == "absent" {
			l.ClearRemoteID(d.Platform)
			if !l.IsListedAnywhere() {
				l.Status = ListingStatusDeleted
			}
		}
	default:
		return fmt.Errorf("unknown divergence field %q", d.Field)
	}
	return nil
}

// ResolutionLabel returns the resolution's wire name.
func ResolutionLabel(resolution int8) string {
	switch resolution {
	case ResolutionApplied:
		return "applied"
	case ResolutionKept:
		return "kept"
	default:
		return "pending"
	}
}
