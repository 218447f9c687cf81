package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangelogRepo persists product changelog entries.
type ChangelogRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewChangelogRepo constructs a ChangelogRepo.
func NewChangelogRepo(db *gorm.DB, logger *zap.Logger) *ChangelogRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangelogRepo{db: db, logger: logger.Named("store.changelog")}
}

// Create inserts a changelog entry.
func (r *ChangelogRepo) Create(ctx context.Context, entry *ChangelogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create changelog entry: %w", err)
	}
	return nil
}

// List returns entries newest first, optionally filtered by tag.
func (r *ChangelogRepo) List(ctx context.Context, tag string, limit, offset int) ([]ChangelogEntry, error) {
	query := r.db.WithContext(ctx).Model(&ChangelogEntry{}).Order("published_at DESC")
	if tag != "" {
		query = query.Where("tag = ?", tag)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var out []ChangelogEntry
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list changelog entries: %w", err)
	}
	return out, nil
}
