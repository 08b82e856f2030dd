package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// ChunkKey addresses one chunk row by its composite primary key.
type ChunkKey struct {
	ParentID string
	ID       string
}

type ChunkRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error
	GetByKeys(ctx context.Context, tx *gorm.DB, keys []ChunkKey) ([]*domain.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*domain.Chunk, error)

	// ListByParent returns every chunk directly under one blob, in chunk
	// order. For a question blob that is its whole answer set.
	ListByParent(ctx context.Context, tx *gorm.DB, parentID string) ([]*domain.Chunk, error)
	DeleteByBlobID(ctx context.Context, tx *gorm.DB, parentID, blobID string) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Upsert(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(chunks) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "parent_id"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(&chunks).Error
}

func (r *chunkRepo) GetByKeys(ctx context.Context, tx *gorm.DB, keys []ChunkKey) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Chunk
	if len(keys) == 0 {
		return results, nil
	}

	pairs := make([][]any, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, []any{k.ParentID, k.ID})
	}

	if err := transaction.WithContext(ctx).
		Where("(parent_id, id) IN ?", pairs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Chunk
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) ListByParent(ctx context.Context, tx *gorm.DB, parentID string) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*domain.Chunk
	if err := transaction.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("blob_id ASC, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) DeleteByBlobID(ctx context.Context, tx *gorm.DB, parentID, blobID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("parent_id = ? AND blob_id = ?", parentID, blobID).
		Delete(&domain.Chunk{}).Error
}
