package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type SentNotificationRepo interface {
	// SentChunkIDs returns the subset of chunkIDs that already produced an
	// email for this standing query.
	SentChunkIDs(ctx context.Context, tx *gorm.DB, queryKey string, chunkIDs []string) (map[string]bool, error)

	MarkSent(ctx context.Context, tx *gorm.DB, rows []*domain.SentNotification) error
	DeleteByQueryKey(ctx context.Context, tx *gorm.DB, queryKey string) error
}

type sentNotificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSentNotificationRepo(db *gorm.DB, baseLog *logger.Logger) SentNotificationRepo {
	return &sentNotificationRepo{db: db, log: baseLog.With("repo", "SentNotificationRepo")}
}

func (r *sentNotificationRepo) SentChunkIDs(ctx context.Context, tx *gorm.DB, queryKey string, chunkIDs []string) (map[string]bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	sent := map[string]bool{}
	if len(chunkIDs) == 0 {
		return sent, nil
	}

	var rows []*domain.SentNotification
	if err := transaction.WithContext(ctx).
		Where("query_key = ? AND chunk_id IN ?", queryKey, chunkIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		sent[row.ChunkID] = true
	}
	return sent, nil
}

func (r *sentNotificationRepo) MarkSent(ctx context.Context, tx *gorm.DB, rows []*domain.SentNotification) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (r *sentNotificationRepo) DeleteByQueryKey(ctx context.Context, tx *gorm.DB, queryKey string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("query_key = ?", queryKey).
		Delete(&domain.SentNotification{}).Error
}
