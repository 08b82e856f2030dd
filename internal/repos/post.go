package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type PostRepo interface {
	Get(ctx context.Context, tx *gorm.DB, courseID, postID string) (*domain.Post, error)
	Upsert(ctx context.Context, tx *gorm.DB, post *domain.Post) error

	// ListNeedingSummary returns posts whose last major update is newer than
	// their summary. Timestamp columns compare lexicographically.
	ListNeedingSummary(ctx context.Context, tx *gorm.DB, courseID string) ([]*domain.Post, error)

	// ListSummarizedSince returns posts with a non-empty summary refreshed at
	// or after sinceISO, newest first.
	ListSummarizedSince(ctx context.Context, tx *gorm.DB, courseID, sinceISO string) ([]*domain.Post, error)

	ListAnnouncementsSince(ctx context.Context, tx *gorm.DB, courseID, sinceISO string) ([]*domain.Post, error)
}

type postRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostRepo(db *gorm.DB, baseLog *logger.Logger) PostRepo {
	return &postRepo{db: db, log: baseLog.With("repo", "PostRepo")}
}

func (r *postRepo) Get(ctx context.Context, tx *gorm.DB, courseID, postID string) (*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var post domain.Post
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND post_id = ?", courseID, postID).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepo) Upsert(ctx context.Context, tx *gorm.DB, post *domain.Post) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "post_id"}},
			UpdateAll: true,
		}).
		Create(post).Error
}

func (r *postRepo) ListNeedingSummary(ctx context.Context, tx *gorm.DB, courseID string) ([]*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Post
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND last_major_update > summary_last_updated", courseID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *postRepo) ListSummarizedSince(ctx context.Context, tx *gorm.DB, courseID, sinceISO string) ([]*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Post
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND summary_last_updated >= ? AND current_summary <> ''", courseID, sinceISO).
		Order("summary_last_updated DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *postRepo) ListAnnouncementsSince(ctx context.Context, tx *gorm.DB, courseID, sinceISO string) ([]*domain.Post, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Post
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND is_announcement = ? AND created_time >= ?", courseID, true, sinceISO).
		Order("created_time DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
