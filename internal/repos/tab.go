package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type TabRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tab *domain.Tab) error
	Get(ctx context.Context, tx *gorm.DB, userID, tabID string) (*domain.Tab, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*domain.Tab, error)
	Rename(ctx context.Context, tx *gorm.DB, userID, tabID, name, updatedAt string) error
	Delete(ctx context.Context, tx *gorm.DB, userID, tabID string) error
}

type tabRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTabRepo(db *gorm.DB, baseLog *logger.Logger) TabRepo {
	return &tabRepo{db: db, log: baseLog.With("repo", "TabRepo")}
}

func (r *tabRepo) Create(ctx context.Context, tx *gorm.DB, tab *domain.Tab) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Create(tab).Error
}

func (r *tabRepo) Get(ctx context.Context, tx *gorm.DB, userID, tabID string) (*domain.Tab, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var tab domain.Tab
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND tab_id = ?", userID, tabID).
		First(&tab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tab, nil
}

func (r *tabRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*domain.Tab, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Tab
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tabRepo) Rename(ctx context.Context, tx *gorm.DB, userID, tabID, name, updatedAt string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&domain.Tab{}).
		Where("user_id = ? AND tab_id = ?", userID, tabID).
		Updates(map[string]any{"name": name, "updated_at": updatedAt}).Error
}

func (r *tabRepo) Delete(ctx context.Context, tx *gorm.DB, userID, tabID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("user_id = ? AND tab_id = ?", userID, tabID).
		Delete(&domain.Tab{}).Error
}
