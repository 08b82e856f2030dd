package feedpoll

import (
	"context"
	"fmt"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/queue"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

// Poller watches course feeds for posts whose change log grew since the last
// poll and enqueues them for the incremental scraper. The feed's log length
// is the only signal read here; the scraper resolves what actually changed.
type Poller struct {
	log     *logger.Logger
	pz      piazza.Client
	courses *config.Courses
	seen    repos.ProcessedUpdateRepo
	updates queue.UpdateQueue
}

func New(log *logger.Logger, pz piazza.Client, courses *config.Courses, seen repos.ProcessedUpdateRepo, updates queue.UpdateQueue) (*Poller, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pz == nil || courses == nil || seen == nil || updates == nil {
		return nil, fmt.Errorf("poller dependencies incomplete")
	}
	return &Poller{
		log:     log.With("service", "FeedPoller"),
		pz:      pz,
		courses: courses,
		seen:    seen,
		updates: updates,
	}, nil
}

// Run polls every active course once and returns how many updates were
// enqueued. A course that fails is logged and skipped so one flaky feed
// cannot starve the rest.
func (p *Poller) Run(ctx context.Context) (int, error) {
	enqueued := 0
	for _, course := range p.courses.Active() {
		n, err := p.pollCourse(ctx, course)
		if err != nil {
			if ctx.Err() != nil {
				return enqueued, ctx.Err()
			}
			p.log.Error("Course poll failed",
				"course", course.DisplayName,
				"course_id", course.NetworkID,
				"error", err.Error(),
			)
			continue
		}
		enqueued += n
	}
	p.log.Info("Poll pass complete", "enqueued", enqueued)
	return enqueued, nil
}

func (p *Poller) pollCourse(ctx context.Context, course config.Course) (int, error) {
	courseID := course.NetworkID

	feed, err := p.pz.Feed(ctx, courseID)
	if err != nil {
		return 0, fmt.Errorf("fetch feed: %w", err)
	}

	postIDs := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		postIDs = append(postIDs, item.ID)
	}
	watermarks, err := p.seen.LogLengths(ctx, nil, courseID, postIDs)
	if err != nil {
		return 0, fmt.Errorf("load watermarks: %w", err)
	}

	var (
		enqueued int
		advanced []*domain.ProcessedUpdate
	)
	for _, item := range feed.Items {
		logLen := len(item.Log)
		if prev, ok := watermarks[item.ID]; ok && logLen <= prev {
			continue
		}

		if err := p.updates.Publish(ctx, queue.Update{CourseID: courseID, PostID: item.ID}); err != nil {
			// Do not advance the watermark; the next pass retries.
			return enqueued, fmt.Errorf("enqueue update for post %s: %w", item.ID, err)
		}
		enqueued++
		advanced = append(advanced, &domain.ProcessedUpdate{
			CourseID:  courseID,
			PostID:    item.ID,
			LogLength: logLen,
		})
		p.log.Info("Enqueued post update",
			"course_id", courseID,
			"post_id", item.ID,
			"log_length", logLen,
		)
	}

	if err := p.seen.SetLogLengths(ctx, nil, advanced); err != nil {
		// Updates are already queued; the scraper's dedup absorbs the
		// duplicates the stale watermark will cause.
		p.log.Warn("Failed to persist watermarks", "course_id", courseID, "error", err.Error())
	}
	return enqueued, nil
}
