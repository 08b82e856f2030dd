package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/ingest/chunks"
	"github.com/davenfroberg/gpta-backend/internal/ingest/extract"
	"github.com/davenfroberg/gpta-backend/internal/ingest/posts"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/queue"
)

const (
	// scrapePause keeps the full scrape polite; the forum rate-limits
	// aggressive crawlers.
	scrapePause = time.Second

	queueBatch = 10
	queueWait  = time.Second
)

// FullScraper rebuilds the chunk index for a whole course. It deliberately
// does not touch the post/diff store: backfilled history is not "changes".
type FullScraper struct {
	log     *logger.Logger
	pz      piazza.Client
	courses *config.Courses
	chunks  *chunks.Manager
}

func NewFullScraper(log *logger.Logger, pz piazza.Client, courses *config.Courses, cm *chunks.Manager) (*FullScraper, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pz == nil || courses == nil || cm == nil {
		return nil, fmt.Errorf("piazza client, course config, and chunk manager required")
	}
	return &FullScraper{
		log:     log.With("service", "FullScraper"),
		pz:      pz,
		courses: courses,
		chunks:  cm,
	}, nil
}

// Run scrapes every post of one course.
func (s *FullScraper) Run(ctx context.Context, courseName string) (int, error) {
	course, ok := s.courses.ByName(courseName)
	if !ok {
		return 0, fmt.Errorf("unknown course %q", courseName)
	}
	if course.Ignored {
		s.log.Info("Skipping ignored course", "course", courseName)
		return 0, nil
	}
	courseID := course.NetworkID

	feed, err := s.pz.Feed(ctx, courseID)
	if err != nil {
		return 0, fmt.Errorf("list course feed: %w", err)
	}
	s.log.Info("Starting full scrape", "course_id", courseID, "posts", len(feed.Items))

	extractor, err := extract.New(s.log, s.pz, courseID)
	if err != nil {
		return 0, err
	}

	for _, item := range feed.Items {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		post, err := s.pz.GetPost(ctx, courseID, item.ID)
		if err != nil {
			s.log.Error("Failed to fetch post; continuing", "post_id", item.ID, "error", err.Error())
			continue
		}

		blobs := extractor.Blobs(ctx, post)
		if err := s.chunks.ProcessBlobs(ctx, courseID, blobs); err != nil {
			return 0, fmt.Errorf("process post %s: %w", item.ID, err)
		}

		time.Sleep(scrapePause)
	}

	total, err := s.chunks.Finalize(ctx)
	if err != nil {
		return total, err
	}
	s.log.Info("Full scrape complete", "course_id", courseID, "chunks", total)
	return total, nil
}

// IncrementalScraper drains the update queue and reprocesses only the posts
// whose feed entries changed.
type IncrementalScraper struct {
	log     *logger.Logger
	pz      piazza.Client
	courses *config.Courses
	chunks  *chunks.Manager
	posts   *posts.Manager
	updates queue.UpdateQueue
}

func NewIncrementalScraper(log *logger.Logger, pz piazza.Client, courses *config.Courses, cm *chunks.Manager, pm *posts.Manager, updates queue.UpdateQueue) (*IncrementalScraper, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pz == nil || courses == nil || cm == nil || pm == nil || updates == nil {
		return nil, fmt.Errorf("incremental scraper dependencies incomplete")
	}
	return &IncrementalScraper{
		log:     log.With("service", "IncrementalScraper"),
		pz:      pz,
		courses: courses,
		chunks:  cm,
		posts:   pm,
		updates: updates,
	}, nil
}

func (s *IncrementalScraper) drain(ctx context.Context) ([]queue.Update, error) {
	var all []queue.Update
	for {
		batch, err := s.updates.Receive(ctx, queueBatch, queueWait)
		if err != nil {
			return all, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	s.log.Info("Drained update queue", "updates", len(all))
	return all, nil
}

func groupByCourse(updates []queue.Update) map[string][]string {
	grouped := map[string][]string{}
	for _, u := range updates {
		grouped[u.CourseID] = append(grouped[u.CourseID], u.PostID)
	}
	return grouped
}

// Run processes all queued updates. A post that fails is pushed back onto
// the queue so the next run retries it; chunk processing is content-hashed,
// so redelivery is idempotent.
func (s *IncrementalScraper) Run(ctx context.Context) (int, error) {
	updates, err := s.drain(ctx)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	grouped := groupByCourse(updates)
	for courseID, postIDs := range grouped {
		course, known := s.courses.ByID(courseID)
		if known && course.Ignored {
			s.log.Info("Dropping updates for ignored course", "course_id", courseID, "count", len(postIDs))
			continue
		}

		extractor, err := extract.New(s.log, s.pz, courseID)
		if err != nil {
			return 0, err
		}

		for _, postID := range postIDs {
			if err := s.processOne(ctx, course, courseID, postID, extractor); err != nil {
				s.log.Error("Failed to process post; requeueing",
					"course_id", courseID,
					"post_id", postID,
					"error", err.Error(),
				)
				if reqErr := s.updates.Requeue(ctx, queue.Update{CourseID: courseID, PostID: postID}); reqErr != nil {
					s.log.Error("Requeue failed; update lost until next full scrape",
						"course_id", courseID,
						"post_id", postID,
						"error", reqErr.Error(),
					)
				}
			}
		}
	}

	total, err := s.chunks.Finalize(ctx)
	if err != nil {
		return total, err
	}
	s.log.Info("Incremental scrape complete", "chunks", total)
	return total, nil
}

func (s *IncrementalScraper) processOne(ctx context.Context, course config.Course, courseID, postID string, extractor *extract.Extractor) error {
	post, err := s.pz.GetPost(ctx, courseID, postID)
	if err != nil {
		return fmt.Errorf("fetch post: %w", err)
	}

	blobs := extractor.Blobs(ctx, post)
	if err := s.chunks.ProcessBlobs(ctx, courseID, blobs); err != nil {
		return err
	}
	return s.posts.ProcessPost(ctx, course, courseID, post)
}
