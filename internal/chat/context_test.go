package chat

import (
	"context"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

type fakeVectorStore struct {
	matches []pinecone.Match
}

func (f *fakeVectorStore) UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query, courseID string, topK int) ([]pinecone.Match, error) {
	return f.matches, nil
}

type fakeChunkRepo struct {
	rows []*domain.Chunk
}

func (f *fakeChunkRepo) Upsert(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error {
	return nil
}

func (f *fakeChunkRepo) GetByKeys(ctx context.Context, tx *gorm.DB, keys []repos.ChunkKey) ([]*domain.Chunk, error) {
	var out []*domain.Chunk
	for _, row := range f.rows {
		for _, k := range keys {
			if row.ParentID == k.ParentID && row.ID == k.ID {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*domain.Chunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) ListByParent(ctx context.Context, tx *gorm.DB, parentID string) ([]*domain.Chunk, error) {
	var out []*domain.Chunk
	for _, row := range f.rows {
		if row.ParentID == parentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) DeleteByBlobID(ctx context.Context, tx *gorm.DB, parentID, blobID string) error {
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return log
}

func TestAssembleFiltersLowScores(t *testing.T) {
	vectors := &fakeVectorStore{matches: []pinecone.Match{
		{ChunkID: "b1#0", Score: 0.8, CourseID: "net1", ParentID: "p1", BlobID: "b1", RootID: "r1", RootPostNum: 12, Type: "i_answer", Title: "HW3", Date: "2026-02-01T00:00:00Z"},
		{ChunkID: "b2#0", Score: 0.10, CourseID: "net1", ParentID: "p2", BlobID: "b2", RootID: "r2", RootPostNum: 13, Type: "i_answer", Title: "Old"},
	}}
	chunks := &fakeChunkRepo{rows: []*domain.Chunk{
		{ParentID: "p1", ID: "b1#0", BlobID: "b1", Type: "i_answer", ChunkText: "The deadline is Friday."},
		{ParentID: "p2", ID: "b2#0", BlobID: "b2", Type: "i_answer", ChunkText: "Stale text."},
	}}

	a, err := NewAssembler(testLogger(t), vectors, chunks)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	asm, err := a.Assemble(context.Background(), "when is hw3 due", "net1", true)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if len(asm.TopChunks) != 1 {
		t.Fatalf("expected 1 kept hit, got %d", len(asm.TopChunks))
	}
	if strings.Contains(asm.Context, "Stale text.") {
		t.Fatalf("below-threshold hit leaked into context:\n%s", asm.Context)
	}
	if !strings.Contains(asm.Context, "The deadline is Friday.") {
		t.Fatalf("kept hit missing from context:\n%s", asm.Context)
	}
	if !strings.Contains(asm.Context, "Available citations: @12") {
		t.Fatalf("missing citation prelude:\n%s", asm.Context)
	}
	if !strings.Contains(asm.Context, `[From Post @12: "HW3"]`) {
		t.Fatalf("missing post tag:\n%s", asm.Context)
	}
}

func TestAssembleNoContextSentinel(t *testing.T) {
	a, err := NewAssembler(testLogger(t), &fakeVectorStore{}, &fakeChunkRepo{})
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	asm, err := a.Assemble(context.Background(), "anything", "net1", true)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(asm.Context, noContextSentinel) {
		t.Fatalf("expected sentinel in empty context:\n%s", asm.Context)
	}
	if len(asm.Citations) != 0 {
		t.Fatalf("expected no citations, got %v", asm.Citations)
	}
}

func TestAssembleQuestionSwapsForAnswers(t *testing.T) {
	vectors := &fakeVectorStore{matches: []pinecone.Match{
		{ChunkID: "q1#0", Score: 0.9, CourseID: "net1", ParentID: "r1", BlobID: "q1", RootID: "r1", RootPostNum: 7, Type: "question", Title: "Midterm rooms"},
	}}
	chunks := &fakeChunkRepo{rows: []*domain.Chunk{
		{ParentID: "q1", ID: "a1#0", BlobID: "a1", Type: "i_answer", Title: "Midterm rooms", AuthorName: "Prof. Lee", ChunkText: "Room 101 for last names A-M."},
		{ParentID: "q1", ID: "q1#0", BlobID: "q1", Type: "question", Title: "Midterm rooms", ChunkText: "Where is the midterm?"},
	}}

	a, err := NewAssembler(testLogger(t), vectors, chunks)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}
	asm, err := a.Assemble(context.Background(), "midterm room", "net1", true)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(asm.Context, `Instructor's (name=Prof. Lee) answer to question with title: "Midterm rooms":`) {
		t.Fatalf("missing instructor answer framing:\n%s", asm.Context)
	}
	if !strings.Contains(asm.Context, "Room 101 for last names A-M.") {
		t.Fatalf("missing answer text:\n%s", asm.Context)
	}
}

func TestFormatQuestionContextVariants(t *testing.T) {
	base := questionFormatterInput{
		Title:          "HW2 Q3",
		QuestionText:   "How do we handle ties?",
		InstructorName: "<unknown instructor name>",
	}

	// No answers yet.
	got := formatQuestionContext(base)
	if !strings.Contains(got, "Someone asked the following question but there are no answers yet:") {
		t.Fatalf("unanswered framing missing: %q", got)
	}
	if !strings.Contains(got, "How do we handle ties?") {
		t.Fatalf("question text missing: %q", got)
	}

	// Instructor answer wins when prioritized and student is unendorsed.
	in := base
	in.InstructorChunks = []string{"Break ties by id."}
	in.StudentChunks = []string{"I think alphabetical."}
	in.PrioritizeInstructor = true
	got = formatQuestionContext(in)
	if !strings.Contains(got, "Break ties by id.") {
		t.Fatalf("instructor answer missing: %q", got)
	}
	if strings.Contains(got, "I think alphabetical.") {
		t.Fatalf("unendorsed student answer should be suppressed: %q", got)
	}

	// Endorsement lets the student answer through.
	in.StudentEndorsed = true
	got = formatQuestionContext(in)
	if !strings.Contains(got, "instructor-endorsed answer") {
		t.Fatalf("endorsement marker missing: %q", got)
	}
	if !strings.Contains(got, "I think alphabetical.") {
		t.Fatalf("endorsed student answer missing: %q", got)
	}

	// Without prioritization both answers appear.
	in.StudentEndorsed = false
	in.PrioritizeInstructor = false
	got = formatQuestionContext(in)
	if !strings.Contains(got, "Break ties by id.") || !strings.Contains(got, "I think alphabetical.") {
		t.Fatalf("expected both answers: %q", got)
	}
}

func TestBuildCitationsGateAndDedupe(t *testing.T) {
	hits := []pinecone.Match{
		{Score: 1.0, CourseID: "net1", RootID: "r1", RootPostNum: 0, Title: "HW3"},
		{Score: 0.9, CourseID: "net1", RootID: "r1", RootPostNum: 5, Title: "HW3"},
		{Score: 0.8, CourseID: "net1", RootID: "r2", RootPostNum: 9, Title: "Welcome to Piazza!"},
		{Score: 0.5, CourseID: "net1", RootID: "r3", RootPostNum: 2, Title: "Syllabus"},
	}
	citations := BuildCitations(hits)
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d: %v", len(citations), citations)
	}
	c := citations[0]
	if c.Title != "HW3" {
		t.Fatalf("unexpected citation %+v", c)
	}
	if c.URL != "https://piazza.com/class/net1/post/r1" {
		t.Fatalf("unexpected url %q", c.URL)
	}
	// The duplicate hit carried the post number the first lacked.
	if c.PostNumber != 5 {
		t.Fatalf("post number not upgraded: %+v", c)
	}
}

func TestBuildCitationsEmpty(t *testing.T) {
	if got := BuildCitations(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
