package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"crosslister/internal/model"
	"crosslister/pkg/utils"
)

// ListingRepository listing repository interface
type ListingRepository interface {
	// Create listing
	Create(ctx context.Context, listing *model.ListingRecord) error

	// Get listing by ID
	GetByID(ctx context.Context, id string) (*model.ListingRecord, error)

	// Save persists the full record including the remote-id map
	Save(ctx context.Context, listing *model.ListingRecord) error

	// Update listing status
	UpdateStatus(ctx context.Context, id string, status int8) error

	// List listings
	List(ctx context.Context, page, pageSize int, status int8) ([]*model.ListingRecord, int64, error)

	// ListActive returns every active listing, used by reconciliation
	ListActive(ctx context.Context) ([]*model.ListingRecord, error)
}

// listingRepository listing repository implementation
type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a listing repository
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

// Create creates a listing
func (r *listingRepository) Create(ctx context.Context, listing *model.ListingRecord) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

// GetByID gets a listing by ID
func (r *listingRepository) GetByID(ctx context.Context, id string) (*model.ListingRecord, error) {
	var listing model.ListingRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// Save persists the full record
func (r *listingRepository) Save(ctx context.Context, listing *model.ListingRecord) error {
	return r.db.WithContext(ctx).Save(listing).Error
}

// UpdateStatus updates the listing status
func (r *listingRepository) UpdateStatus(ctx context.Context, id string, status int8) error {
	result := r.db.WithContext(ctx).
		Model(&model.ListingRecord{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrListingNotFound
	}
	return nil
}

// List lists listings with pagination
func (r *listingRepository) List(ctx context.Context, page, pageSize int, status int8) ([]*model.ListingRecord, int64, error) {
	var (
		listings []*model.ListingRecord
		total    int64
	)

	query := r.db.WithContext(ctx).Model(&model.ListingRecord{})
	if status > 0 {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&listings).Error
	if err != nil {
		return nil, 0, err
	}

	return listings, total, nil
}

// ListActive returns every active listing
func (r *listingRepository) ListActive(ctx context.Context) ([]*model.ListingRecord, error) {
	var listings []*model.ListingRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", model.ListingStatusActive).
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}
