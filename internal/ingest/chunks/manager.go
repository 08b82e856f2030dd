package chunks

import (
	"context"
	"fmt"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/ingest/extract"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	pineconeplat "github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/repos"
	"github.com/davenfroberg/gpta-backend/internal/textproc"
)

const (
	// KVBatchGetSize bounds one existence check against the chunk table.
	KVBatchGetSize = 100
	// PineconeBatchSize bounds one upsert against the vector index.
	PineconeBatchSize = 25
)

// VectorWriter is the slice of the vector store the manager needs.
type VectorWriter interface {
	UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error
}

var _ VectorWriter = (pineconeplat.VectorStore)(nil)

// Manager owns chunk creation, content-hash dedup, and dual storage: the
// chunk table is written before the run moves on, the vector batch rides
// along and flushes at PineconeBatchSize.
//
// Ordering invariant: a chunk reaches the vector index only in the same pass
// that writes it to the chunk table. A KV failure aborts before the post is
// considered processed, so the next run retries naturally.
type Manager struct {
	log       *logger.Logger
	chunkRepo repos.ChunkRepo
	vectors   VectorWriter

	pineconeBatch []*domain.Chunk
	chunkCount    int
}

func NewManager(log *logger.Logger, chunkRepo repos.ChunkRepo, vectors VectorWriter) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if chunkRepo == nil {
		return nil, fmt.Errorf("chunk repo required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector writer required")
	}
	return &Manager{
		log:       log.With("service", "ChunkManager"),
		chunkRepo: chunkRepo,
		vectors:   vectors,
	}, nil
}

// BuildChunks turns one blob into its chunk rows.
func BuildChunks(courseID string, blob extract.Blob) []*domain.Chunk {
	texts := textproc.ChunkText(blob.Content, blob.Title, textproc.ChunkSizeWords)
	out := make([]*domain.Chunk, 0, len(texts))
	for idx, text := range texts {
		out = append(out, &domain.Chunk{
			ID:          fmt.Sprintf("%s#%d", blob.ID, idx),
			ParentID:    blob.ParentID,
			CourseID:    courseID,
			BlobID:      blob.ID,
			ChunkIndex:  idx,
			RootID:      blob.RootID,
			RootPostNum: blob.RootPostNum,
			Type:        blob.Type,
			Title:       blob.Title,
			Date:        blob.Date,
			AuthorName:  blob.AuthorName,
			Endorsement: blob.Endorsement,
			ContentHash: textproc.Hash(text),
			ChunkText:   text,
		})
	}
	return out
}

// ProcessBlobs chunks a post's blobs and stores whatever is new or changed.
func (m *Manager) ProcessBlobs(ctx context.Context, courseID string, blobs []extract.Blob) error {
	var postChunks []*domain.Chunk
	for _, blob := range blobs {
		postChunks = append(postChunks, BuildChunks(courseID, blob)...)
	}

	for i := 0; i < len(postChunks); i += KVBatchGetSize {
		end := i + KVBatchGetSize
		if end > len(postChunks) {
			end = len(postChunks)
		}
		if err := m.processBatch(ctx, postChunks[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) processBatch(ctx context.Context, batch []*domain.Chunk) error {
	keys := make([]repos.ChunkKey, 0, len(batch))
	for _, c := range batch {
		keys = append(keys, repos.ChunkKey{ParentID: c.ParentID, ID: c.ID})
	}
	existing, err := m.chunkRepo.GetByKeys(ctx, nil, keys)
	if err != nil {
		return fmt.Errorf("chunk batch get: %w", err)
	}
	existingHashes := make(map[string]string, len(existing))
	for _, c := range existing {
		existingHashes[c.ID] = c.ContentHash
	}

	var toInsert []*domain.Chunk
	for _, c := range batch {
		if hash, ok := existingHashes[c.ID]; ok && hash == c.ContentHash {
			m.log.Debug("Skipped duplicate chunk", "chunk_id", c.ID)
			continue
		}
		toInsert = append(toInsert, c)
		m.pineconeBatch = append(m.pineconeBatch, c)
		m.chunkCount++

		if len(m.pineconeBatch) >= PineconeBatchSize {
			if err := m.flushPinecone(ctx); err != nil {
				return err
			}
		}
	}

	if len(toInsert) == 0 {
		return nil
	}

	if err := m.chunkRepo.Upsert(ctx, nil, toInsert); err != nil {
		return fmt.Errorf("chunk store: %w", err)
	}
	m.log.Info("Stored chunks", "count", len(toInsert))

	// Flush after every KV write so the vector index never runs far ahead
	// of durable storage.
	return m.flushPinecone(ctx)
}

func (m *Manager) flushPinecone(ctx context.Context) error {
	if len(m.pineconeBatch) == 0 {
		return nil
	}
	if err := m.vectors.UpsertChunks(ctx, m.pineconeBatch); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	m.log.Info("Upserted chunks to vector index", "count", len(m.pineconeBatch))
	m.pineconeBatch = nil
	return nil
}

// Finalize flushes the residual vector batch and returns the chunks written
// this run.
func (m *Manager) Finalize(ctx context.Context) (int, error) {
	if err := m.flushPinecone(ctx); err != nil {
		return m.chunkCount, err
	}
	return m.chunkCount, nil
}
