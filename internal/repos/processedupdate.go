package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type ProcessedUpdateRepo interface {
	// LogLengths returns the last-seen change-log length per post ID.
	// Posts never seen before are absent from the map.
	LogLengths(ctx context.Context, tx *gorm.DB, courseID string, postIDs []string) (map[string]int, error)

	SetLogLengths(ctx context.Context, tx *gorm.DB, rows []*domain.ProcessedUpdate) error
}

type processedUpdateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessedUpdateRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedUpdateRepo {
	return &processedUpdateRepo{db: db, log: baseLog.With("repo", "ProcessedUpdateRepo")}
}

func (r *processedUpdateRepo) LogLengths(ctx context.Context, tx *gorm.DB, courseID string, postIDs []string) (map[string]int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	out := map[string]int{}
	if len(postIDs) == 0 {
		return out, nil
	}

	var rows []*domain.ProcessedUpdate
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND post_id IN ?", courseID, postIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.PostID] = row.LogLength
	}
	return out, nil
}

func (r *processedUpdateRepo) SetLogLengths(ctx context.Context, tx *gorm.DB, rows []*domain.ProcessedUpdate) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "post_id"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
}
