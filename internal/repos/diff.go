package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type DiffRepo interface {
	Append(ctx context.Context, tx *gorm.DB, diffs []*domain.PostDiff) error

	// ListByPost returns every diff for a post in log order.
	ListByPost(ctx context.Context, tx *gorm.DB, postKey string) ([]*domain.PostDiff, error)

	// ListByPostAfter returns diffs strictly newer than afterSortKey, in log
	// order. An empty afterSortKey returns everything.
	ListByPostAfter(ctx context.Context, tx *gorm.DB, postKey, afterSortKey string) ([]*domain.PostDiff, error)
}

type diffRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiffRepo(db *gorm.DB, baseLog *logger.Logger) DiffRepo {
	return &diffRepo{db: db, log: baseLog.With("repo", "DiffRepo")}
}

func (r *diffRepo) Append(ctx context.Context, tx *gorm.DB, diffs []*domain.PostDiff) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(diffs) == 0 {
		return nil
	}

	// Re-scrapes can replay a window; collisions on (post_key, sort_key)
	// are the same diff and can be skipped.
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&diffs).Error
}

func (r *diffRepo) ListByPost(ctx context.Context, tx *gorm.DB, postKey string) ([]*domain.PostDiff, error) {
	return r.ListByPostAfter(ctx, tx, postKey, "")
}

func (r *diffRepo) ListByPostAfter(ctx context.Context, tx *gorm.DB, postKey, afterSortKey string) ([]*domain.PostDiff, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).Where("post_key = ?", postKey)
	if afterSortKey != "" {
		q = q.Where("sort_key > ?", afterSortKey)
	}

	var results []*domain.PostDiff
	if err := q.Order("sort_key ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
