package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crosslister/internal/model"
)

// SaleRepository sale repository interface
type SaleRepository interface {
	// Append inserts a sale, ignoring duplicates on (platform, sale_id).
	// Reports whether a row was actually inserted.
	Append(ctx context.Context, sale *model.SaleRecord) (bool, error)

	// Exists reports whether a sale was already recorded
	Exists(ctx context.Context, platform, saleID string) (bool, error)

	// ListByDateRange returns sales in the window ordered by sale date
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*model.SaleRecord, error)

	// ListByListing returns sales for one listing
	ListByListing(ctx context.Context, listingID string) ([]*model.SaleRecord, error)
}

// saleRepository sale repository implementation
type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a sale repository
func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Append inserts a sale, ignoring duplicates. The affected-row count is the
// only reliable duplicate signal, since in-memory filters reset on restart.
func (r *saleRepository) Append(ctx context.Context, sale *model.SaleRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sale)
	return res.RowsAffected > 0, res.Error
}

// Exists reports whether a sale was already recorded
func (r *saleRepository) Exists(ctx context.Context, platform, saleID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.SaleRecord{}).
		Where("platform = ? AND sale_id = ?", platform, saleID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByDateRange returns sales in the window ordered by sale date
func (r *saleRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]*model.SaleRecord, error) {
	var sales []*model.SaleRecord
	err := r.db.WithContext(ctx).
		Where("sale_date >= ? AND sale_date <= ?", from, to).
		Order("sale_date ASC").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// ListByListing returns sales for one listing
func (r *saleRepository) ListByListing(ctx context.Context, listingID string) ([]*model.SaleRecord, error) {
	var sales []*model.SaleRecord
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("sale_date ASC").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}
