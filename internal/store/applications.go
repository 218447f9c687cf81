package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplicationRepo persists job and partner applications.
type ApplicationRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewApplicationRepo constructs an ApplicationRepo.
func NewApplicationRepo(db *gorm.DB, logger *zap.Logger) *ApplicationRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationRepo{db: db, logger: logger.Named("store.applications")}
}

// CreateJobApplication inserts a job application.
func (r *ApplicationRepo) CreateJobApplication(ctx context.Context, app *JobApplication) error {
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		return fmt.Errorf("create job application: %w", err)
	}
	r.logger.Debug("job application created",
		zap.String("id", app.ID), zap.String("position", app.Position))
	return nil
}

// CreatePartnerApplication inserts a partner application.
func (r *ApplicationRepo) CreatePartnerApplication(ctx context.Context, app *PartnerApplication) error {
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		return fmt.Errorf("create partner application: %w", err)
	}
	r.logger.Debug("partner application created",
		zap.String("id", app.ID), zap.String("company", app.Company))
	return nil
}

// ListJobApplications returns job applications newest first.
func (r *ApplicationRepo) ListJobApplications(ctx context.Context, limit, offset int) ([]JobApplication, error) {
	var out []JobApplication
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list job applications: %w", err)
	}
	return out, nil
}

// ListPartnerApplications returns partner applications newest first.
func (r *ApplicationRepo) ListPartnerApplications(ctx context.Context, limit, offset int) ([]PartnerApplication, error) {
	var out []PartnerApplication
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list partner applications: %w", err)
	}
	return out, nil
}
