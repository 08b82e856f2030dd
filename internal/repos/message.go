package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, msg *domain.Message) error

	// ListByTab reads a tab's history in creation order via a sort-key
	// prefix scan.
	ListByTab(ctx context.Context, tx *gorm.DB, userID, tabID string) ([]*domain.Message, error)

	MarkNotificationCreated(ctx context.Context, tx *gorm.DB, userID, messageID string) error
	DeleteByTab(ctx context.Context, tx *gorm.DB, userID, tabID string) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(ctx context.Context, tx *gorm.DB, msg *domain.Message) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Create(msg).Error
}

func (r *messageRepo) ListByTab(ctx context.Context, tx *gorm.DB, userID, tabID string) ([]*domain.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Message
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND sort_key LIKE ?", userID, tabID+"#%").
		Order("sort_key ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *messageRepo) MarkNotificationCreated(ctx context.Context, tx *gorm.DB, userID, messageID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&domain.Message{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Update("notification_created", true).Error
}

func (r *messageRepo) DeleteByTab(ctx context.Context, tx *gorm.DB, userID, tabID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("user_id = ? AND sort_key LIKE ?", userID, tabID+"#%").
		Delete(&domain.Message{}).Error
}
