package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/davenfroberg/gpta-backend/internal/clients/openai"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

const (
	defaultWorkers = 10

	// freshSummaryGapDays is how stale a running summary may get before the
	// next pass starts a fresh one instead of appending.
	freshSummaryGapDays = 2

	diffContentLimit = 500
)

const systemInstructions = "You are a backend summarization engine for a technical course forum. " +
	"Your output is for a 'Catch Me Up' dashboard. The user should know what's been happening on the forum.\n" +
	"RULES:\n" +
	"1. ATTRIBUTED BREVITY: Always identify the source of key info (e.g., 'Instructor confirmed...', 'Student reported issue with...').\n" +
	"2. IF RESOLVED: State the solution clearly (e.g., 'Instructor clarified that only one screenshot is required').\n" +
	"3. IF UNRESOLVED: Summarize the core question (e.g., 'Student asked for clarification on the deadline; no response yet.').\n" +
	"4. FRESH SUMMARIES (CONTEXT USE): When provided with a 'Previous Summary' as context, do not repeat it. " +
	"Summarize ONLY the 'New Updates', but use the context to anchor the topic (e.g., 'Instructor provided the missing screenshot,' rather than just 'Instructor posted an image').\n" +
	"5. FORMATTING: Max 2 sentences. No bullet points."

// Summarizer keeps per-post running summaries current with the diff log.
type Summarizer struct {
	log      *logger.Logger
	courses  *config.Courses
	postRepo repos.PostRepo
	diffRepo repos.DiffRepo
	ai       openai.Client

	workers int
	now     func() time.Time
}

func New(log *logger.Logger, courses *config.Courses, postRepo repos.PostRepo, diffRepo repos.DiffRepo, ai openai.Client) (*Summarizer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if courses == nil || postRepo == nil || diffRepo == nil || ai == nil {
		return nil, fmt.Errorf("summarizer dependencies incomplete")
	}
	return &Summarizer{
		log:      log.With("service", "Summarizer"),
		courses:  courses,
		postRepo: postRepo,
		diffRepo: diffRepo,
		ai:       ai,
		workers:  envutil.Int("SUMMARIZER_WORKERS", defaultWorkers),
		now:      time.Now,
	}, nil
}

// Run summarizes every post whose major-update watermark passed its summary
// watermark, across all active courses. Posts are independent, so failures
// are counted rather than propagated.
func (s *Summarizer) Run(ctx context.Context) (processed int, failed int, err error) {
	var pending []*domain.Post
	for _, course := range s.courses.Active() {
		posts, listErr := s.postRepo.ListNeedingSummary(ctx, nil, course.NetworkID)
		if listErr != nil {
			return 0, 0, fmt.Errorf("list posts for %s: %w", course.DisplayName, listErr)
		}
		pending = append(pending, posts...)
	}
	s.log.Info("Found posts requiring summarization", "post_count", len(pending))
	if len(pending) == 0 {
		return 0, 0, nil
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		results = make(chan error, len(pending))
	)
	g.SetLimit(s.workers)
	for _, post := range pending {
		post := post
		g.Go(func() error {
			if err := s.summarizePost(gctx, post); err != nil {
				s.log.Error("Summarization failed",
					"course_id", post.CourseID,
					"post_id", post.PostID,
					"error", err.Error(),
				)
				results <- err
				return nil
			}
			results <- nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	close(results)
	for r := range results {
		if r != nil {
			failed++
		} else {
			processed++
		}
	}
	s.log.Info("Summarization run completed",
		"total_posts", len(pending),
		"processed_posts", processed,
		"failed_posts", failed,
	)
	return processed, failed, nil
}

func (s *Summarizer) summarizePost(ctx context.Context, post *domain.Post) error {
	postKey := post.CourseID + "#" + post.PostID
	now := s.now().UTC()

	diffs, err := s.diffRepo.ListByPostAfter(ctx, nil, postKey, normalizeToUTC(post.SummaryLastUpdated))
	if err != nil {
		return fmt.Errorf("list diffs: %w", err)
	}
	if len(diffs) == 0 {
		s.log.Debug("No new diffs to summarize", "post_key", postKey)
		return nil
	}

	events := formatDiffs(diffs)
	title := post.PostTitle
	if title == "" {
		title = "Untitled"
	}
	current := post.CurrentSummary
	if current == "" {
		current = "No summary available."
	}

	var prompt string
	if needsFreshSummary(post, now) {
		s.log.Info("Generating fresh summary", "post_key", postKey)
		prompt = fmt.Sprintf(
			"Summary type: New Updates Report\n"+
				"Post Title: %s\n"+
				"Context (Previously established facts): %s\n"+
				"--- END CONTEXT ---\n\n"+
				"Recent Updates (The only thing to summarize):\n%s\n\n"+
				"Task: Summarize ONLY the 'Recent Updates'. "+
				"Use the 'Context' to understand what the updates are referring to, but DO NOT repeat the context in your output. "+
				"If the updates are just replies, state who (student vs instructor) replied and the resolution.",
			title, current, events,
		)
	} else {
		prompt = fmt.Sprintf(
			"Summary type: Running Log Update\n"+
				"Post Title: %s\n"+
				"Current Running Summary: %s\n\n"+
				"New Updates to append/merge:\n%s\n\n"+
				"Task: Update the 'Current Running Summary' to include the 'New Updates'. "+
				"Keep the history intact but condense slightly if it gets too long.",
			title, current, events,
		)
	}

	summary, err := s.ai.GenerateText(ctx, systemInstructions, prompt)
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	post.CurrentSummary = summary
	post.SummaryLastUpdated = now.Format("2006-01-02T15:04:05Z07:00")
	post.NeedsNewSummary = false
	// Legacy rows carried local-offset timestamps; rewrite them while the row
	// is being written anyway so lexicographic comparisons stay honest.
	post.LastMajorUpdate = normalizeToUTC(post.LastMajorUpdate)
	post.LastUpdated = normalizeToUTC(post.LastUpdated)

	if err := s.postRepo.Upsert(ctx, nil, post); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	s.log.Info("Updated summary", "post_key", postKey)
	return nil
}

// needsFreshSummary decides between a fresh summary and a running-log merge.
// A post never summarized cannot fresh-start; otherwise a flagged question
// edit or a gap longer than freshSummaryGapDays forces one.
func needsFreshSummary(post *domain.Post, now time.Time) bool {
	last := strings.TrimSpace(post.SummaryLastUpdated)
	if last == "" || last < "2000-01-01T00:00:00Z" {
		return false
	}
	t, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return true
	}
	outsideRange := now.Sub(t.UTC()) > freshSummaryGapDays*24*time.Hour
	return post.NeedsNewSummary || outsideRange
}

func formatDiffs(diffs []*domain.PostDiff) string {
	var lines []string
	for _, diff := range diffs {
		diffType := diff.Type
		if diffType == "" {
			diffType = "update"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", diff.Timestamp, strings.ToUpper(diffType)))
		if diff.Subject != "" {
			lines = append(lines, "Subject: "+diff.Subject)
		}
		if diff.Content != "" {
			content := diff.Content
			if len(content) > diffContentLimit {
				content = content[:diffContentLimit]
			}
			lines = append(lines, "Content: "+content+"...")
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
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
