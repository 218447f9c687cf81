package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChatRepo persists chat sessions and their messages.
type ChatRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *gorm.DB, logger *zap.Logger) *ChatRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatRepo{db: db, logger: logger.Named("store.chat")}
}

// CreateSession inserts a chat session.
func (r *ChatRepo) CreateSession(ctx context.Context, session *ChatSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	return nil
}

// AppendMessage adds a message to an existing session. The session must
// exist.
func (r *ChatRepo) AppendMessage(ctx context.Context, message *ChatMessage) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ChatSession{}).
		Where("id = ?", message.SessionID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check chat session: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// GetSession loads a session with its messages oldest first.
func (r *ChatRepo) GetSession(ctx context.Context, id string) (ChatSession, error) {
	var session ChatSession
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		return ChatSession{}, fmt.Errorf("get chat session: %w", translate(err))
	}
	return session, nil
}
