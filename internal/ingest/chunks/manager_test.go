package chunks

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/ingest/extract"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

type fakeChunkRepo struct {
	rows map[string]*domain.Chunk // keyed parent_id#id

	upserts int
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{rows: map[string]*domain.Chunk{}}
}

func (f *fakeChunkRepo) key(parentID, id string) string { return parentID + "#" + id }

func (f *fakeChunkRepo) Upsert(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error {
	f.upserts++
	for _, c := range chunks {
		copied := *c
		f.rows[f.key(c.ParentID, c.ID)] = &copied
	}
	return nil
}

func (f *fakeChunkRepo) GetByKeys(ctx context.Context, tx *gorm.DB, keys []repos.ChunkKey) ([]*domain.Chunk, error) {
	var out []*domain.Chunk
	for _, k := range keys {
		if row, ok := f.rows[f.key(k.ParentID, k.ID)]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*domain.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ListByParent(ctx context.Context, tx *gorm.DB, parentID string) ([]*domain.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) DeleteByBlobID(ctx context.Context, tx *gorm.DB, parentID, blobID string) error {
	return nil
}

type recordingVectors struct {
	upserted []*domain.Chunk
}

func (r *recordingVectors) UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	r.upserted = append(r.upserted, chunks...)
	return nil
}

func newTestManager(t *testing.T, repo *fakeChunkRepo, vectors *recordingVectors) *Manager {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	m, err := NewManager(log, repo, vectors)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func testBlob(id, content string) extract.Blob {
	return extract.Blob{
		ID:          id,
		ParentID:    "root1",
		RootID:      "root1",
		RootPostNum: 4,
		Type:        "i_answer",
		Title:       "HW3",
		Date:        "2026-03-09T10:00:00Z",
		Content:     content,
	}
}

func TestBuildChunksIdentity(t *testing.T) {
	chunksOut := BuildChunks("net1", testBlob("b1", "Short answer."))
	if len(chunksOut) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunksOut))
	}
	c := chunksOut[0]
	if c.ID != "b1#0" || c.ChunkIndex != 0 || c.CourseID != "net1" || c.BlobID != "b1" {
		t.Fatalf("unexpected identity %+v", c)
	}
	if c.ContentHash == "" {
		t.Fatalf("content hash missing")
	}
}

func TestProcessBlobsStoresNewChunks(t *testing.T) {
	repo := newFakeChunkRepo()
	vectors := &recordingVectors{}
	m := newTestManager(t, repo, vectors)

	ctx := context.Background()
	if err := m.ProcessBlobs(ctx, "net1", []extract.Blob{testBlob("b1", "Short answer.")}); err != nil {
		t.Fatalf("ProcessBlobs: %v", err)
	}
	n, err := m.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 chunk written, got %d", n)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("chunk table holds %d rows", len(repo.rows))
	}
	if len(vectors.upserted) != 1 {
		t.Fatalf("vector index holds %d records", len(vectors.upserted))
	}
}

func TestProcessBlobsSkipsUnchanged(t *testing.T) {
	repo := newFakeChunkRepo()
	vectors := &recordingVectors{}
	m := newTestManager(t, repo, vectors)
	ctx := context.Background()

	blob := testBlob("b1", "Short answer.")
	if err := m.ProcessBlobs(ctx, "net1", []extract.Blob{blob}); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if _, err := m.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Second pass over identical content must be a no-op.
	m2 := newTestManager(t, repo, vectors)
	if err := m2.ProcessBlobs(ctx, "net1", []extract.Blob{blob}); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	n, err := m2.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if n != 0 {
		t.Fatalf("unchanged blob rewrote %d chunks", n)
	}
	if len(vectors.upserted) != 1 {
		t.Fatalf("unchanged blob reached the vector index")
	}
}

func TestProcessBlobsRewritesChangedContent(t *testing.T) {
	repo := newFakeChunkRepo()
	vectors := &recordingVectors{}
	m := newTestManager(t, repo, vectors)
	ctx := context.Background()

	if err := m.ProcessBlobs(ctx, "net1", []extract.Blob{testBlob("b1", "Old answer.")}); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if _, err := m.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	m2 := newTestManager(t, repo, vectors)
	if err := m2.ProcessBlobs(ctx, "net1", []extract.Blob{testBlob("b1", "Edited answer.")}); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	n, err := m2.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if n != 1 {
		t.Fatalf("edited content must rewrite its chunk, got %d", n)
	}
	stored := repo.rows["root1#b1#0"]
	if stored == nil {
		t.Fatalf("chunk row missing after rewrite")
	}
	if stored.ChunkText == "Title: HW3\n\nOld answer." {
		t.Fatalf("stale text survived the rewrite")
	}
}
