package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type StudentQueryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, sq *domain.StudentQuery) error
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*domain.StudentQuery, error)
}

type studentQueryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentQueryRepo(db *gorm.DB, baseLog *logger.Logger) StudentQueryRepo {
	return &studentQueryRepo{db: db, log: baseLog.With("repo", "StudentQueryRepo")}
}

func (r *studentQueryRepo) Create(ctx context.Context, tx *gorm.DB, sq *domain.StudentQuery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Create(sq).Error
}

func (r *studentQueryRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string, limit int) ([]*domain.StudentQuery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if limit <= 0 {
		limit = 100
	}

	var results []*domain.StudentQuery
	if err := transaction.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
