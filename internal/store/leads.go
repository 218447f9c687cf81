package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LeadRepo persists marketing leads.
type LeadRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLeadRepo constructs a LeadRepo.
func NewLeadRepo(db *gorm.DB, logger *zap.Logger) *LeadRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadRepo{db: db, logger: logger.Named("store.leads")}
}

// Create inserts a lead.
func (r *LeadRepo) Create(ctx context.Context, lead *Lead) error {
	if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	r.logger.Debug("lead created", zap.String("id", lead.ID))
	return nil
}

// List returns leads newest first, optionally filtered by status.
func (r *LeadRepo) List(ctx context.Context, status string, limit, offset int) ([]Lead, error) {
	query := r.db.WithContext(ctx).Model(&Lead{}).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var out []Lead
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return out, nil
}
