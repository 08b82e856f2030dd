package notify

import (
	"context"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/clients/sendgrid"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

const testCoursesYAML = `
courses:
  - display_name: "CPSC 330"
    network_id: "net1"
`

func testCourses(t *testing.T) *config.Courses {
	t.Helper()
	courses, err := config.Parse([]byte(testCoursesYAML))
	if err != nil {
		t.Fatalf("parse courses: %v", err)
	}
	return courses
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	return log
}

type fakeVectorStore struct {
	matches []pinecone.Match

	lastTopK int
}

func (f *fakeVectorStore) UpsertChunks(ctx context.Context, chunks []*domain.Chunk) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query, courseID string, topK int) ([]pinecone.Match, error) {
	f.lastTopK = topK
	if topK < len(f.matches) {
		return f.matches[:topK], nil
	}
	return f.matches, nil
}

type fakeStandingQueryRepo struct {
	queries map[string]*domain.StandingQuery // keyed user_id#query_key

	recordedScore float64
	recordedMax   int
	deleted       []string
}

func newFakeStandingQueryRepo() *fakeStandingQueryRepo {
	return &fakeStandingQueryRepo{queries: map[string]*domain.StandingQuery{}}
}

func (f *fakeStandingQueryRepo) Upsert(ctx context.Context, tx *gorm.DB, sq *domain.StandingQuery) error {
	copied := *sq
	f.queries[sq.UserID+"#"+sq.QueryKey] = &copied
	return nil
}

func (f *fakeStandingQueryRepo) Get(ctx context.Context, tx *gorm.DB, userID, queryKey string) (*domain.StandingQuery, error) {
	sq, ok := f.queries[userID+"#"+queryKey]
	if !ok {
		return nil, nil
	}
	copied := *sq
	return &copied, nil
}

func (f *fakeStandingQueryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*domain.StandingQuery, error) {
	return nil, nil
}

func (f *fakeStandingQueryRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*domain.StandingQuery, error) {
	var out []*domain.StandingQuery
	for _, sq := range f.queries {
		if sq.CourseID == courseID {
			out = append(out, sq)
		}
	}
	return out, nil
}

func (f *fakeStandingQueryRepo) Delete(ctx context.Context, tx *gorm.DB, userID, queryKey string) error {
	f.deleted = append(f.deleted, userID+"#"+queryKey)
	delete(f.queries, userID+"#"+queryKey)
	return nil
}

func (f *fakeStandingQueryRepo) RecordSent(ctx context.Context, tx *gorm.DB, userID, queryKey string, closestScore float64, maxNotifications int) error {
	f.recordedScore = closestScore
	f.recordedMax = maxNotifications
	if sq, ok := f.queries[userID+"#"+queryKey]; ok {
		sq.ClosestScore = closestScore
		sq.MaxNotifications = maxNotifications
	}
	return nil
}

type fakeSentRepo struct {
	sent    map[string]bool // query_key#chunk_id
	deleted []string
}

func newFakeSentRepo() *fakeSentRepo {
	return &fakeSentRepo{sent: map[string]bool{}}
}

func (f *fakeSentRepo) SentChunkIDs(ctx context.Context, tx *gorm.DB, queryKey string, chunkIDs []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range chunkIDs {
		if f.sent[queryKey+"#"+id] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeSentRepo) MarkSent(ctx context.Context, tx *gorm.DB, rows []*domain.SentNotification) error {
	for _, row := range rows {
		f.sent[row.QueryKey+"#"+row.ChunkID] = true
	}
	return nil
}

func (f *fakeSentRepo) DeleteByQueryKey(ctx context.Context, tx *gorm.DB, queryKey string) error {
	f.deleted = append(f.deleted, queryKey)
	return nil
}

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, user *domain.User) error {
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, userID string) (*domain.User, error) {
	return f.users[userID], nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*domain.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	return false, nil
}

type recordingMailer struct {
	requests []sendgrid.SendEmailRequest
}

func (r *recordingMailer) Send(ctx context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error) {
	r.requests = append(r.requests, req)
	return &sendgrid.SendEmailResult{}, nil
}

var (
	_ repos.StandingQueryRepo    = (*fakeStandingQueryRepo)(nil)
	_ repos.SentNotificationRepo = (*fakeSentRepo)(nil)
	_ repos.UserRepo             = (*fakeUserRepo)(nil)
)

func standingQuery() *domain.StandingQuery {
	return &domain.StandingQuery{
		UserID:                "u1",
		QueryKey:              "net1#when is the midterm",
		CourseID:              "net1",
		Query:                 "when is the midterm",
		CourseDisplayName:     "CPSC 330",
		ClosestScore:          0.30,
		NotificationThreshold: 0.40,
		MaxNotifications:      3,
	}
}

func newTestEngine(t *testing.T, vectors *fakeVectorStore, queries *fakeStandingQueryRepo, sent *fakeSentRepo, users *fakeUserRepo, mailer *recordingMailer) *Engine {
	t.Helper()
	e, err := NewEngine(testLogger(t), testCourses(t), vectors, queries, sent, users, mailer)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineSendsAboveThresholdOnce(t *testing.T) {
	vectors := &fakeVectorStore{matches: []pinecone.Match{
		{ChunkID: "c1", Score: 0.55, RootID: "r1", Title: "Midterm date announced"},
		{ChunkID: "c2", Score: 0.20, RootID: "r2", Title: "Unrelated"},
	}}
	queries := newFakeStandingQueryRepo()
	sq := standingQuery()
	queries.queries[sq.UserID+"#"+sq.QueryKey] = sq
	sent := newFakeSentRepo()
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": {UserID: "u1", Email: "student@example.com"}}}
	mailer := &recordingMailer{}

	e := newTestEngine(t, vectors, queries, sent, users, mailer)
	total, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 email, got %d", total)
	}

	req := mailer.requests[0]
	if req.To[0].Email != "student@example.com" {
		t.Fatalf("wrong recipient %+v", req.To)
	}
	if req.Subject != "GP-TA found a relevant post for CPSC 330" {
		t.Fatalf("unexpected subject %q", req.Subject)
	}
	if !strings.Contains(req.Text, "https://piazza.com/class/net1/post/r1") {
		t.Fatalf("post link missing:\n%s", req.Text)
	}
	if !strings.Contains(req.Text, `"Midterm date announced"`) {
		t.Fatalf("post title missing:\n%s", req.Text)
	}

	// Window widened by sends, best score recorded.
	if queries.recordedMax != 4 {
		t.Fatalf("expected max_notifications 4, got %d", queries.recordedMax)
	}
	if queries.recordedScore != 0.55 {
		t.Fatalf("expected closest_score 0.55, got %v", queries.recordedScore)
	}

	// Second pass over identical matches must not re-email.
	total, err = e.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if total != 0 {
		t.Fatalf("dedup failed: %d emails on second pass", total)
	}
}

func TestEngineSearchWidthIsMaxNotifications(t *testing.T) {
	vectors := &fakeVectorStore{}
	queries := newFakeStandingQueryRepo()
	sq := standingQuery()
	sq.MaxNotifications = 7
	queries.queries[sq.UserID+"#"+sq.QueryKey] = sq
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": {UserID: "u1", Email: "s@example.com"}}}

	e := newTestEngine(t, vectors, queries, newFakeSentRepo(), users, &recordingMailer{})
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if vectors.lastTopK != 7 {
		t.Fatalf("expected search width 7, got %d", vectors.lastTopK)
	}
}

func TestEngineSkipsExhaustedQuery(t *testing.T) {
	vectors := &fakeVectorStore{matches: []pinecone.Match{{ChunkID: "c1", Score: 0.9}}}
	queries := newFakeStandingQueryRepo()
	sq := standingQuery()
	sq.MaxNotifications = 0
	queries.queries[sq.UserID+"#"+sq.QueryKey] = sq
	users := &fakeUserRepo{users: map[string]*domain.User{"u1": {UserID: "u1", Email: "s@example.com"}}}
	mailer := &recordingMailer{}

	e := newTestEngine(t, vectors, queries, newFakeSentRepo(), users, mailer)
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mailer.requests) != 0 {
		t.Fatalf("exhausted query must not email")
	}
}

func TestRegistrarThresholdClamped(t *testing.T) {
	cases := []struct {
		top  float64
		want float64
	}{
		{0.20, MinThreshold}, // 0.30 clamps up to the floor
		{0.30, 0.40},
		{0.60, MaxThreshold},
	}
	for _, tc := range cases {
		vectors := &fakeVectorStore{matches: []pinecone.Match{{ChunkID: "c1", Score: tc.top}}}
		queries := newFakeStandingQueryRepo()
		r, err := NewRegistrar(testLogger(t), testCourses(t), vectors, queries, newFakeSentRepo())
		if err != nil {
			t.Fatalf("NewRegistrar: %v", err)
		}
		sq, err := r.Register(context.Background(), "u1", "CPSC 330", "when is the midterm")
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if sq.NotificationThreshold != tc.want {
			t.Fatalf("top %v: expected threshold %v, got %v", tc.top, tc.want, sq.NotificationThreshold)
		}
		if sq.MaxNotifications != InitialMaxNotifications {
			t.Fatalf("expected initial window %d, got %d", InitialMaxNotifications, sq.MaxNotifications)
		}
		if sq.ClosestScore != tc.top {
			t.Fatalf("expected closest score %v, got %v", tc.top, sq.ClosestScore)
		}
	}
}

func TestRegistrarDuplicateIsNoOp(t *testing.T) {
	vectors := &fakeVectorStore{matches: []pinecone.Match{{ChunkID: "c1", Score: 0.5}}}
	queries := newFakeStandingQueryRepo()
	r, err := NewRegistrar(testLogger(t), testCourses(t), vectors, queries, newFakeSentRepo())
	if err != nil {
		t.Fatalf("NewRegistrar: %v", err)
	}

	first, err := r.Register(context.Background(), "u1", "CPSC 330", "midterm")
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	first.MaxNotifications = 9 // simulate later widening
	if err := queries.Upsert(context.Background(), nil, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	second, err := r.Register(context.Background(), "u1", "CPSC 330", "midterm")
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if second.MaxNotifications != 9 {
		t.Fatalf("duplicate registration must return the existing record, got %+v", second)
	}
}

func TestDeregisterClearsDedupSet(t *testing.T) {
	queries := newFakeStandingQueryRepo()
	sent := newFakeSentRepo()
	r, err := NewRegistrar(testLogger(t), testCourses(t), &fakeVectorStore{}, queries, sent)
	if err != nil {
		t.Fatalf("NewRegistrar: %v", err)
	}
	if err := r.Deregister(context.Background(), "u1", "net1#midterm"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if len(queries.deleted) != 1 || queries.deleted[0] != "u1#net1#midterm" {
		t.Fatalf("standing query not deleted: %v", queries.deleted)
	}
	if len(sent.deleted) != 1 || sent.deleted[0] != "u1#net1#midterm" {
		t.Fatalf("sent set not cleared: %v", sent.deleted)
	}
}
