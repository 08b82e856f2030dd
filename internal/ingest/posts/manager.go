package posts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

// Change-log entry types on the wire.
const (
	TypeNewQuestion            = "create"
	TypeQuestionUpdate         = "update"
	TypeInstructorAnswer       = "i_answer"
	TypeInstructorAnswerUpdate = "i_answer_update"
	TypeStudentAnswer          = "s_answer"
	TypeStudentAnswerUpdate    = "s_answer_update"
	TypeFollowup               = "followup"
	TypeFeedback               = "feedback"
)

// AnnouncementWindow is how recent a new announcement post must be to fan
// out email; anything older arrived via backfill, not a live announcement.
const AnnouncementWindow = 48 * time.Hour

// IsMajor reports whether a change moves last_major_update. New questions
// and new answers are major; edits and discussion are minor.
func IsMajor(changeType string) bool {
	switch changeType {
	case TypeNewQuestion, TypeInstructorAnswer, TypeStudentAnswer:
		return true
	}
	return false
}

func changeKind(changeType string) string {
	switch changeType {
	case TypeNewQuestion, TypeQuestionUpdate:
		return "question"
	case TypeInstructorAnswer, TypeInstructorAnswerUpdate:
		return "i_answer"
	case TypeStudentAnswer, TypeStudentAnswerUpdate:
		return "s_answer"
	default:
		return ""
	}
}

// Mailer is the slice of the email client the announcement fan-out needs.
type Mailer interface {
	SendAnnouncement(ctx context.Context, a Announcement) error
}

// Manager maintains the Post record and its append-only diff log, and fans
// out announcement email for fresh announcement posts.
type Manager struct {
	log      *logger.Logger
	postRepo repos.PostRepo
	diffRepo repos.DiffRepo
	mailer   Mailer // nil disables announcement email

	now func() time.Time
}

func NewManager(log *logger.Logger, postRepo repos.PostRepo, diffRepo repos.DiffRepo, mailer Mailer) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if postRepo == nil || diffRepo == nil {
		return nil, fmt.Errorf("post and diff repos required")
	}
	return &Manager{
		log:      log.With("service", "PostManager"),
		postRepo: postRepo,
		diffRepo: diffRepo,
		mailer:   mailer,
		now:      time.Now,
	}, nil
}

// ProcessPost diffs the fetched post tree against the persisted change count
// and appends one diff per materially new change.
//
// Only the new tail of the change log is examined. Within a tail the scrape
// already collapsed successive edits into current state, so at most one
// question change, one instructor-answer change, and one student-answer
// change are written per pass; followups and feedback are written one-per.
func (m *Manager) ProcessPost(ctx context.Context, course config.Course, courseID string, post *piazza.PostNode) error {
	if post == nil {
		return fmt.Errorf("nil post")
	}

	existing, err := m.postRepo.Get(ctx, nil, courseID, post.ID)
	if err != nil {
		return fmt.Errorf("load post record: %w", err)
	}

	oldChanges := 0
	if existing != nil {
		oldChanges = existing.NumChanges
	}
	if oldChanges > len(post.ChangeLog) {
		// The forum can compact its log; restart tracking from the top.
		m.log.Warn("Change log shrank; resetting watermark",
			"course_id", courseID,
			"post_id", post.ID,
			"recorded", oldChanges,
			"observed", len(post.ChangeLog),
		)
		oldChanges = 0
	}
	tail := post.ChangeLog[oldChanges:]
	if len(tail) == 0 {
		return nil
	}

	now := m.now().UTC()
	nowISO := now.Format("2006-01-02T15:04:05Z07:00")

	var (
		diffs     []*domain.PostDiff
		seq       int
		sawMajor  bool
		seenKinds = map[string]bool{}
	)
	postKey := courseID + "#" + post.ID

	appendDiff := func(changeType, subject, content string) {
		diffs = append(diffs, &domain.PostDiff{
			PostKey:   postKey,
			SortKey:   fmt.Sprintf("%s#%d", nowISO, seq),
			CourseID:  courseID,
			PostID:    post.ID,
			Timestamp: nowISO,
			Type:      changeType,
			Subject:   subject,
			Content:   content,
		})
		seq++
		if IsMajor(changeType) {
			sawMajor = true
		}
	}

	rootHist := post.CurrentHistory()
	for _, change := range tail {
		kind := changeKind(change.Type)
		if kind != "" {
			if seenKinds[kind] {
				continue
			}
			seenKinds[kind] = true
		}

		switch kind {
		case "question":
			appendDiff(change.Type, rootHist.Subject, rootHist.Content)
		case "i_answer":
			appendDiff(change.Type, "", childAnswerContent(post, "i_answer"))
		case "s_answer":
			appendDiff(change.Type, "", childAnswerContent(post, "s_answer"))
		default:
			// Discussion text lives in the child's subject on the wire.
			if node := findNode(post, change.CID); node != nil {
				appendDiff(change.Type, "", node.Subject)
			} else {
				m.log.Warn("Change references unknown child",
					"post_id", post.ID,
					"change_cid", change.CID,
					"change_type", change.Type,
				)
			}
		}
	}

	if err := m.diffRepo.Append(ctx, nil, diffs); err != nil {
		return fmt.Errorf("append diffs: %w", err)
	}

	record := m.buildPostRecord(existing, course, courseID, post, nowISO, sawMajor, seenKinds["question"] && oldChanges > 0)
	if err := m.postRepo.Upsert(ctx, nil, record); err != nil {
		return fmt.Errorf("update post record: %w", err)
	}
	m.log.Info("Processed post changes",
		"course_id", courseID,
		"post_id", post.ID,
		"new_diffs", len(diffs),
		"major", sawMajor,
	)

	if existing == nil {
		m.maybeAnnounce(ctx, course, courseID, post, now)
	}
	return nil
}

func (m *Manager) buildPostRecord(existing *domain.Post, course config.Course, courseID string, post *piazza.PostNode, nowISO string, sawMajor, questionEdited bool) *domain.Post {
	record := existing
	if record == nil {
		record = &domain.Post{
			CourseID:           courseID,
			PostID:             post.ID,
			SummaryLastUpdated: "1970-01-01T00:00:00Z",
		}
	}

	hist := post.CurrentHistory()
	record.PostTitle = hist.Subject
	record.CreatedTime = normalizeToUTC(post.Created)
	record.IsAnnouncement = post.Config.IsAnnouncement == 1
	record.NumChanges = len(post.ChangeLog)
	record.LastUpdated = nowISO
	if sawMajor {
		record.LastMajorUpdate = nowISO
	} else {
		// Legacy rows can hold non-UTC offsets that break lexicographic
		// comparison; normalize while we are writing anyway.
		record.LastMajorUpdate = normalizeToUTC(record.LastMajorUpdate)
	}
	if questionEdited {
		record.NeedsNewSummary = true
	}
	return record
}

func (m *Manager) maybeAnnounce(ctx context.Context, course config.Course, courseID string, post *piazza.PostNode, now time.Time) {
	if m.mailer == nil || post.Config.IsAnnouncement != 1 {
		return
	}
	created, err := time.Parse(time.RFC3339, post.Created)
	if err != nil || now.Sub(created) > AnnouncementWindow {
		return
	}

	hist := post.CurrentHistory()
	a := Announcement{
		CourseID:   courseID,
		CourseName: course.DisplayName,
		PostID:     post.ID,
		PostNum:    post.NR,
		Subject:    hist.Subject,
		HTML:       hist.Content,
	}
	if err := m.mailer.SendAnnouncement(ctx, a); err != nil {
		m.log.Error("Announcement email failed",
			"course_id", courseID,
			"post_id", post.ID,
			"error", err.Error(),
		)
		return
	}
	m.log.Info("Announcement email sent", "course_id", courseID, "post_id", post.ID)
}

// childAnswerContent returns the current content of the post's direct
// i_answer or s_answer child. A post has at most one of each.
func childAnswerContent(post *piazza.PostNode, answerType string) string {
	for i := range post.Children {
		child := &post.Children[i]
		if child.Type == answerType {
			return child.CurrentHistory().Content
		}
	}
	return ""
}

func findNode(root *piazza.PostNode, id string) *piazza.PostNode {
	if id == "" {
		return nil
	}
	for i := range root.Children {
		child := &root.Children[i]
		if child.ID == id {
			return child
		}
		if found := findNode(child, id); found != nil {
			return found
		}
	}
	return nil
}

func normalizeToUTC(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02T15:04:05Z07:00")
}
