package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Blackwoodproductions/webstack-services/internal/health"
)

// AlertRepo persists health alerts. It satisfies health.AlertStore.
type AlertRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAlertRepo constructs an AlertRepo.
func NewAlertRepo(db *gorm.DB, logger *zap.Logger) *AlertRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertRepo{db: db, logger: logger.Named("store.alerts")}
}

// FindUnresolved returns the open alert for a check, if any.
func (r *AlertRepo) FindUnresolved(ctx context.Context, check string) (health.Alert, bool, error) {
	var row HealthAlert
	err := r.db.WithContext(ctx).
		Where("check_name = ? AND resolved_at IS NULL", check).
		Order("raised_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return health.Alert{}, false, nil
	}
	if err != nil {
		return health.Alert{}, false, fmt.Errorf("find unresolved alert: %w", err)
	}
	return toAlert(row), true, nil
}

// Raise inserts a new open alert.
func (r *AlertRepo) Raise(ctx context.Context, alert health.Alert) error {
	row := HealthAlert{
		ID:        alert.ID,
		CheckName: alert.Check,
		Message:   alert.Message,
		RaisedAt:  alert.RaisedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("raise alert: %w", err)
	}
	return nil
}

// Resolve marks an alert resolved.
func (r *AlertRepo) Resolve(ctx context.Context, alertID string, resolvedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&HealthAlert{}).
		Where("id = ? AND resolved_at IS NULL", alertID).
		Update("resolved_at", resolvedAt)
	if result.Error != nil {
		return fmt.Errorf("resolve alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns alerts newest first. Unresolved-only when openOnly is
// set.
func (r *AlertRepo) List(ctx context.Context, openOnly bool, limit, offset int) ([]health.Alert, error) {
	query := r.db.WithContext(ctx).Model(&HealthAlert{}).Order("raised_at DESC")
	if openOnly {
		query = query.Where("resolved_at IS NULL")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []HealthAlert
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]health.Alert, len(rows))
	for i, row := range rows {
		out[i] = toAlert(row)
	}
	return out, nil
}

func toAlert(row HealthAlert) health.Alert {
	return health.Alert{
		ID:         row.ID,
		Check:      row.CheckName,
		Message:    row.Message,
		RaisedAt:   row.RaisedAt,
		ResolvedAt: row.ResolvedAt,
	}
}
