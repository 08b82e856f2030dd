package posts

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type fakePostRepo struct {
	posts map[string]*domain.Post
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: map[string]*domain.Post{}}
}

func (f *fakePostRepo) Get(ctx context.Context, tx *gorm.DB, courseID, postID string) (*domain.Post, error) {
	p, ok := f.posts[courseID+"#"+postID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (f *fakePostRepo) Upsert(ctx context.Context, tx *gorm.DB, post *domain.Post) error {
	copied := *post
	f.posts[post.CourseID+"#"+post.PostID] = &copied
	return nil
}

func (f *fakePostRepo) ListNeedingSummary(ctx context.Context, tx *gorm.DB, courseID string) ([]*domain.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) ListSummarizedSince(ctx context.Context, tx *gorm.DB, courseID, sinceISO string) ([]*domain.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) ListAnnouncementsSince(ctx context.Context, tx *gorm.DB, courseID, sinceISO string) ([]*domain.Post, error) {
	return nil, nil
}

type fakeDiffRepo struct {
	appended []*domain.PostDiff
}

func (f *fakeDiffRepo) Append(ctx context.Context, tx *gorm.DB, diffs []*domain.PostDiff) error {
	f.appended = append(f.appended, diffs...)
	return nil
}

func (f *fakeDiffRepo) ListByPost(ctx context.Context, tx *gorm.DB, postKey string) ([]*domain.PostDiff, error) {
	return f.appended, nil
}

func (f *fakeDiffRepo) ListByPostAfter(ctx context.Context, tx *gorm.DB, postKey, afterSortKey string) ([]*domain.PostDiff, error) {
	return f.appended, nil
}

type recordingMailer struct {
	sent []Announcement
}

func (r *recordingMailer) SendAnnouncement(ctx context.Context, a Announcement) error {
	r.sent = append(r.sent, a)
	return nil
}

func newTestManager(t *testing.T, postRepo *fakePostRepo, diffRepo *fakeDiffRepo, mailer Mailer) *Manager {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	m, err := NewManager(log, postRepo, diffRepo, mailer)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func questionPost(id string, changes ...piazza.Change) *piazza.PostNode {
	return &piazza.PostNode{
		ID:      id,
		Type:    "question",
		Created: "2026-03-09T10:00:00Z",
		NR:      12,
		History: []piazza.HistoryEntry{
			{Subject: "HW3 deadline", Content: "Is HW3 due Friday?"},
		},
		ChangeLog: changes,
	}
}

func TestProcessPostNewQuestion(t *testing.T) {
	postRepo := newFakePostRepo()
	diffRepo := &fakeDiffRepo{}
	m := newTestManager(t, postRepo, diffRepo, nil)

	post := questionPost("p1", piazza.Change{Type: TypeNewQuestion})
	if err := m.ProcessPost(context.Background(), config.Course{DisplayName: "CS 101"}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}

	if len(diffRepo.appended) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(diffRepo.appended))
	}
	d := diffRepo.appended[0]
	if d.Type != TypeNewQuestion || d.Subject != "HW3 deadline" || d.Content != "Is HW3 due Friday?" {
		t.Fatalf("unexpected diff %+v", d)
	}

	record := postRepo.posts["net1#p1"]
	if record == nil {
		t.Fatalf("post record not written")
	}
	if record.NumChanges != 1 {
		t.Fatalf("watermark not advanced: %d", record.NumChanges)
	}
	if record.LastMajorUpdate == "" {
		t.Fatalf("new question is a major change")
	}
	if record.NeedsNewSummary {
		t.Fatalf("a brand-new post must not carry the fresh-summary flag")
	}
}

func TestProcessPostOnlyNewTail(t *testing.T) {
	postRepo := newFakePostRepo()
	postRepo.posts["net1#p1"] = &domain.Post{CourseID: "net1", PostID: "p1", NumChanges: 1}
	diffRepo := &fakeDiffRepo{}
	m := newTestManager(t, postRepo, diffRepo, nil)

	post := questionPost("p1",
		piazza.Change{Type: TypeNewQuestion},
		piazza.Change{Type: TypeInstructorAnswer},
	)
	post.Children = []piazza.PostNode{{
		ID:      "c1",
		Type:    "i_answer",
		History: []piazza.HistoryEntry{{Content: "Yes, Friday 11:59pm."}},
	}}

	if err := m.ProcessPost(context.Background(), config.Course{}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(diffRepo.appended) != 1 {
		t.Fatalf("already-processed changes must be skipped, got %d diffs", len(diffRepo.appended))
	}
	if diffRepo.appended[0].Content != "Yes, Friday 11:59pm." {
		t.Fatalf("answer content not captured: %+v", diffRepo.appended[0])
	}
}

func TestProcessPostCollapsesEditsWithinTail(t *testing.T) {
	postRepo := newFakePostRepo()
	diffRepo := &fakeDiffRepo{}
	m := newTestManager(t, postRepo, diffRepo, nil)

	post := questionPost("p1",
		piazza.Change{Type: TypeNewQuestion},
		piazza.Change{Type: TypeQuestionUpdate},
		piazza.Change{Type: TypeQuestionUpdate},
	)
	if err := m.ProcessPost(context.Background(), config.Course{}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(diffRepo.appended) != 1 {
		t.Fatalf("successive question edits in one tail must collapse, got %d", len(diffRepo.appended))
	}
}

func TestProcessPostQuestionEditFlagsResummary(t *testing.T) {
	postRepo := newFakePostRepo()
	postRepo.posts["net1#p1"] = &domain.Post{CourseID: "net1", PostID: "p1", NumChanges: 1}
	diffRepo := &fakeDiffRepo{}
	m := newTestManager(t, postRepo, diffRepo, nil)

	post := questionPost("p1",
		piazza.Change{Type: TypeNewQuestion},
		piazza.Change{Type: TypeQuestionUpdate},
	)
	if err := m.ProcessPost(context.Background(), config.Course{}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	record := postRepo.posts["net1#p1"]
	if !record.NeedsNewSummary {
		t.Fatalf("an edit to an already-tracked question must flag a fresh summary")
	}
	if record.LastMajorUpdate != "" {
		t.Fatalf("a question edit is a minor change, got %q", record.LastMajorUpdate)
	}
}

func TestProcessPostDiscussionUsesChildSubject(t *testing.T) {
	postRepo := newFakePostRepo()
	diffRepo := &fakeDiffRepo{}
	m := newTestManager(t, postRepo, diffRepo, nil)

	post := questionPost("p1",
		piazza.Change{Type: TypeNewQuestion},
		piazza.Change{Type: TypeFollowup, CID: "f1"},
	)
	post.Children = []piazza.PostNode{{
		ID:      "f1",
		Type:    "followup",
		Subject: "Does that include the bonus part?",
	}}
	if err := m.ProcessPost(context.Background(), config.Course{}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(diffRepo.appended) != 2 {
		t.Fatalf("expected question + followup diffs, got %d", len(diffRepo.appended))
	}
	if diffRepo.appended[1].Content != "Does that include the bonus part?" {
		t.Fatalf("followup text must come from the child subject: %+v", diffRepo.appended[1])
	}
}

func TestProcessPostShrunkLogResets(t *testing.T) {
	postRepo := newFakePostRepo()
	postRepo.posts["net1#p1"] = &domain.Post{CourseID: "net1", PostID: "p1", NumChanges: 5}
	diffRepo := &fakeDiffRepo{}
	m := newTestManager(t, postRepo, diffRepo, nil)

	post := questionPost("p1", piazza.Change{Type: TypeNewQuestion})
	if err := m.ProcessPost(context.Background(), config.Course{}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(diffRepo.appended) != 1 {
		t.Fatalf("a shrunk change log must restart from the top, got %d diffs", len(diffRepo.appended))
	}
	if postRepo.posts["net1#p1"].NumChanges != 1 {
		t.Fatalf("watermark not reset: %d", postRepo.posts["net1#p1"].NumChanges)
	}
}

func TestProcessPostAnnouncementFanout(t *testing.T) {
	postRepo := newFakePostRepo()
	diffRepo := &fakeDiffRepo{}
	mailer := &recordingMailer{}
	m := newTestManager(t, postRepo, diffRepo, mailer)
	m.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	post := questionPost("p1", piazza.Change{Type: TypeNewQuestion})
	post.Config.IsAnnouncement = 1
	if err := m.ProcessPost(context.Background(), config.Course{DisplayName: "CS 101"}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 announcement email, got %d", len(mailer.sent))
	}
	if mailer.sent[0].Subject != "HW3 deadline" || mailer.sent[0].CourseName != "CS 101" {
		t.Fatalf("unexpected announcement %+v", mailer.sent[0])
	}
}

func TestProcessPostStaleAnnouncementSuppressed(t *testing.T) {
	postRepo := newFakePostRepo()
	diffRepo := &fakeDiffRepo{}
	mailer := &recordingMailer{}
	m := newTestManager(t, postRepo, diffRepo, mailer)
	// Backfill scenario: the post was created long before this pass.
	m.now = func() time.Time { return time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC) }

	post := questionPost("p1", piazza.Change{Type: TypeNewQuestion})
	post.Config.IsAnnouncement = 1
	if err := m.ProcessPost(context.Background(), config.Course{DisplayName: "CS 101"}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("backfilled announcements must not email, got %d", len(mailer.sent))
	}
}

func TestProcessPostKnownAnnouncementNoReFanout(t *testing.T) {
	postRepo := newFakePostRepo()
	postRepo.posts["net1#p1"] = &domain.Post{CourseID: "net1", PostID: "p1", NumChanges: 0}
	diffRepo := &fakeDiffRepo{}
	mailer := &recordingMailer{}
	m := newTestManager(t, postRepo, diffRepo, mailer)
	m.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	post := questionPost("p1", piazza.Change{Type: TypeNewQuestion})
	post.Config.IsAnnouncement = 1
	if err := m.ProcessPost(context.Background(), config.Course{}, "net1", post); err != nil {
		t.Fatalf("ProcessPost: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("an already-tracked post must not re-announce")
	}
}

func TestAnnouncementTextRendering(t *testing.T) {
	a := Announcement{
		CourseID:   "net1",
		CourseName: "CS 101",
		PostID:     "p9",
		Subject:    "Exam rooms",
		HTML:       `<p>Check the map.</p><img src="https://piazza.com/redirect/s3?bucket=b&prefix=k">`,
	}
	text := announcementText(a)
	if !strings.Contains(text, "Check the map.") {
		t.Fatalf("body text missing:\n%s", text)
	}
	if !strings.Contains(text, "[This announcement contains images.") {
		t.Fatalf("image notice missing:\n%s", text)
	}
	if !strings.Contains(text, "https://piazza.com/class/net1/post/p9") {
		t.Fatalf("post link missing:\n%s", text)
	}
}

func TestRewriteImageSrc(t *testing.T) {
	got := rewriteImageSrc("https://piazza.com/redirect/s3?bucket=uploads&prefix=img/1.png")
	if got != "https://uploads.s3.amazonaws.com/img/1.png" {
		t.Fatalf("unexpected rewrite %q", got)
	}
	if rewriteImageSrc("https://example.com/pic.png") != "" {
		t.Fatalf("non-redirect sources must not rewrite")
	}
	if rewriteImageSrc("https://piazza.com/redirect/s3?bucket=only") != "" {
		t.Fatalf("missing prefix must not rewrite")
	}
}
