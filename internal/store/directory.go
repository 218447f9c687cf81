package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DirectoryRepo persists directory listings.
type DirectoryRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDirectoryRepo constructs a DirectoryRepo.
func NewDirectoryRepo(db *gorm.DB, logger *zap.Logger) *DirectoryRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryRepo{db: db, logger: logger.Named("store.directory")}
}

// Create inserts a listing in pending status.
func (r *DirectoryRepo) Create(ctx context.Context, listing *DirectoryListing) error {
	if listing.Status == "" {
		listing.Status = ListingStatusPending
	}
	if err := r.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("create directory listing: %w", err)
	}
	return nil
}

// List returns listings filtered by category and status. Public browse
// passes ListingStatusApproved.
func (r *DirectoryRepo) List(ctx context.Context, category, status string, limit, offset int) ([]DirectoryListing, error) {
	query := r.db.WithContext(ctx).Model(&DirectoryListing{}).Order("created_at DESC")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var out []DirectoryListing
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list directory listings: %w", err)
	}
	return out, nil
}

// UpdateStatus moves a listing through the approval flow.
func (r *DirectoryRepo) UpdateStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).Model(&DirectoryListing{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("update listing status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
