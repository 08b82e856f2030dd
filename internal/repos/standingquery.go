package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type StandingQueryRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, sq *domain.StandingQuery) error
	Get(ctx context.Context, tx *gorm.DB, userID, queryKey string) (*domain.StandingQuery, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*domain.StandingQuery, error)
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*domain.StandingQuery, error)
	Delete(ctx context.Context, tx *gorm.DB, userID, queryKey string) error

	// RecordSent bumps the standing query's state after a notification run:
	// the best score seen and the widened search window.
	RecordSent(ctx context.Context, tx *gorm.DB, userID, queryKey string, closestScore float64, maxNotifications int) error
}

type standingQueryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStandingQueryRepo(db *gorm.DB, baseLog *logger.Logger) StandingQueryRepo {
	return &standingQueryRepo{db: db, log: baseLog.With("repo", "StandingQueryRepo")}
}

func (r *standingQueryRepo) Upsert(ctx context.Context, tx *gorm.DB, sq *domain.StandingQuery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "query_key"}},
			UpdateAll: true,
		}).
		Create(sq).Error
}

func (r *standingQueryRepo) Get(ctx context.Context, tx *gorm.DB, userID, queryKey string) (*domain.StandingQuery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var sq domain.StandingQuery
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND query_key = ?", userID, queryKey).
		First(&sq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sq, nil
}

func (r *standingQueryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*domain.StandingQuery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.StandingQuery
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *standingQueryRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*domain.StandingQuery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.StandingQuery
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *standingQueryRepo) Delete(ctx context.Context, tx *gorm.DB, userID, queryKey string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("user_id = ? AND query_key = ?", userID, queryKey).
		Delete(&domain.StandingQuery{}).Error
}

func (r *standingQueryRepo) RecordSent(ctx context.Context, tx *gorm.DB, userID, queryKey string, closestScore float64, maxNotifications int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&domain.StandingQuery{}).
		Where("user_id = ? AND query_key = ?", userID, queryKey).
		Updates(map[string]any{
			"closest_score":     closestScore,
			"max_notifications": maxNotifications,
		}).Error
}
