package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
)

// VisitorRepo persists visitor sessions and their enrichment.
type VisitorRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewVisitorRepo constructs a VisitorRepo.
func NewVisitorRepo(db *gorm.DB, logger *zap.Logger) *VisitorRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisitorRepo{db: db, logger: logger.Named("store.visitors")}
}

// CreateSession inserts a visitor session.
func (r *VisitorRepo) CreateSession(ctx context.Context, session *VisitorSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create visitor session: %w", err)
	}
	return nil
}

// Touch moves a session's last-seen timestamp forward.
func (r *VisitorRepo) Touch(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&VisitorSession{}).
		Where("id = ?", id).
		Update("last_seen", at)
	if result.Error != nil {
		return fmt.Errorf("touch visitor session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyEnrichment attaches derived channel/bot/company metadata to a
// session.
func (r *VisitorRepo) ApplyEnrichment(ctx context.Context, id string, enrichment visitors.Enrichment) error {
	result := r.db.WithContext(ctx).Model(&VisitorSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"channel":       string(enrichment.Channel),
			"is_bot":        enrichment.IsBot,
			"company_guess": enrichment.CompanyGuess,
		})
	if result.Error != nil {
		return fmt.Errorf("apply enrichment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads one visitor session.
func (r *VisitorRepo) Get(ctx context.Context, id string) (VisitorSession, error) {
	var session VisitorSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return VisitorSession{}, fmt.Errorf("get visitor session: %w", translate(err))
	}
	return session, nil
}
