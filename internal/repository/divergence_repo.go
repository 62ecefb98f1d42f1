package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"crosslister/internal/model"
	"crosslister/pkg/utils"
)

// DivergenceRepository sync divergence repository interface
type DivergenceRepository interface {
	// Create records a detected divergence
	Create(ctx context.Context, divergence *model.SyncDivergence) error

	// GetByID returns one divergence
	GetByID(ctx context.Context, id uint64) (*model.SyncDivergence, error)

	// ListPending returns unresolved divergences, optionally for one listing
	ListPending(ctx context.Context, listingID string) ([]*model.SyncDivergence, error)

	// MarkResolved sets the resolution for a divergence
	MarkResolved(ctx context.Context, id uint64, resolution int8) error
}

// divergenceRepository sync divergence repository implementation
type divergenceRepository struct {
	db *gorm.DB
}

// NewDivergenceRepository creates a divergence repository
func NewDivergenceRepository(db *gorm.DB) DivergenceRepository {
	return &divergenceRepository{db: db}
}

// Create records a detected divergence
func (r *divergenceRepository) Create(ctx context.Context, divergence *model.SyncDivergence) error {
	return r.db.WithContext(ctx).Create(divergence).Error
}

// GetByID returns one divergence
func (r *divergenceRepository) GetByID(ctx context.Context, id uint64) (*model.SyncDivergence, error) {
	var divergence model.SyncDivergence
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&divergence).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrDivergenceNotFound
		}
		return nil, err
	}
	return &divergence, nil
}

// ListPending returns unresolved divergences
func (r *divergenceRepository) ListPending(ctx context.Context, listingID string) ([]*model.SyncDivergence, error) {
	query := r.db.WithContext(ctx).
		Where("resolution = ?", model.ResolutionPending)
	if listingID != "" {
		query = query.Where("listing_id = ?", listingID)
	}

	var divergences []*model.SyncDivergence
	err := query.Order("detected_at ASC").Find(&divergences).Error
	if err != nil {
		return nil, err
	}
	return divergences, nil
}

// MarkResolved sets the resolution for a divergence
func (r *divergenceRepository) MarkResolved(ctx context.Context, id uint64, resolution int8) error {
	return r.db.WithContext(ctx).
		Model(&model.SyncDivergence{}).
		Where("id = ?", id).
		Update("resolution", resolution).Error
}
