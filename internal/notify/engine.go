package notify

import (
	"context"
	"fmt"

	"github.com/davenfroberg/gpta-backend/internal/clients/sendgrid"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

// Engine runs one scheduled notification pass over every standing query.
//
// A standing query's max_notifications is both its vector-search width and
// its lifetime sent counter: every successful send widens the next run's
// window, so queries that keep matching keep looking further down the
// ranking, still gated by the score threshold.
type Engine struct {
	log     *logger.Logger
	courses *config.Courses
	vectors pinecone.VectorStore
	queries repos.StandingQueryRepo
	sent    repos.SentNotificationRepo
	users   repos.UserRepo
	sg      sendgrid.Client

	defaultEmail string
}

func NewEngine(log *logger.Logger, courses *config.Courses, vectors pinecone.VectorStore, queries repos.StandingQueryRepo, sent repos.SentNotificationRepo, users repos.UserRepo, sg sendgrid.Client) (*Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if courses == nil || vectors == nil || queries == nil || sent == nil || users == nil || sg == nil {
		return nil, fmt.Errorf("notification engine dependencies incomplete")
	}
	return &Engine{
		log:          log.With("service", "NotificationEngine"),
		courses:      courses,
		vectors:      vectors,
		queries:      queries,
		sent:         sent,
		users:        users,
		sg:           sg,
		defaultEmail: envutil.Str("NOTIFY_DEFAULT_EMAIL", ""),
	}, nil
}

// Run processes every standing query across all active courses and returns
// the number of emails sent. Per-query failures are isolated.
func (e *Engine) Run(ctx context.Context) (int, error) {
	total := 0
	for _, course := range e.courses.Active() {
		standing, err := e.queries.ListByCourse(ctx, nil, course.NetworkID)
		if err != nil {
			return total, fmt.Errorf("list standing queries for %s: %w", course.DisplayName, err)
		}
		for _, sq := range standing {
			sent, err := e.processQuery(ctx, sq)
			if err != nil {
				e.log.Error("Standing query failed",
					"user_id", sq.UserID,
					"query_key", sq.QueryKey,
					"error", err.Error(),
				)
				continue
			}
			total += sent
		}
	}
	e.log.Info("Notification run complete", "emails_sent", total)
	return total, nil
}

func (e *Engine) processQuery(ctx context.Context, sq *domain.StandingQuery) (int, error) {
	recipient := e.resolveEmail(ctx, sq.UserID)
	if recipient == "" {
		return 0, fmt.Errorf("no destination email for user %s", sq.UserID)
	}
	if sq.MaxNotifications <= 0 {
		return 0, nil
	}

	matches, err := e.vectors.Search(ctx, sq.Query, sq.CourseID, sq.MaxNotifications)
	if err != nil {
		return 0, fmt.Errorf("vector search: %w", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	sentKey := sq.UserID + "#" + sq.QueryKey
	chunkIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		chunkIDs = append(chunkIDs, m.ChunkID)
	}
	alreadySent, err := e.sent.SentChunkIDs(ctx, nil, sentKey, chunkIDs)
	if err != nil {
		return 0, fmt.Errorf("load sent set: %w", err)
	}

	var sentRows []*domain.SentNotification
	for _, match := range matches {
		if match.Score < sq.NotificationThreshold {
			e.log.Debug("Skipping match below threshold",
				"chunk_id", match.ChunkID,
				"score", match.Score,
				"threshold", sq.NotificationThreshold,
			)
			continue
		}
		if alreadySent[match.ChunkID] {
			continue
		}

		if err := e.sendEmail(ctx, sq, recipient, match); err != nil {
			// Skip the dedup write so a later run can retry this chunk.
			e.log.Error("Notification email failed",
				"chunk_id", match.ChunkID,
				"query_key", sq.QueryKey,
				"error", err.Error(),
			)
			continue
		}
		sentRows = append(sentRows, &domain.SentNotification{
			QueryKey: sentKey,
			ChunkID:  match.ChunkID,
			UserID:   sq.UserID,
			CourseID: sq.CourseID,
			Query:    sq.Query,
		})
	}

	if len(sentRows) == 0 {
		return 0, nil
	}

	if err := e.sent.MarkSent(ctx, nil, sentRows); err != nil {
		return len(sentRows), fmt.Errorf("record sent notifications: %w", err)
	}

	closest := sq.ClosestScore
	if matches[0].Score > closest {
		closest = matches[0].Score
	}
	if err := e.queries.RecordSent(ctx, nil, sq.UserID, sq.QueryKey, closest, sq.MaxNotifications+len(sentRows)); err != nil {
		return len(sentRows), fmt.Errorf("widen standing query: %w", err)
	}
	e.log.Info("Sent notifications for standing query",
		"user_id", sq.UserID,
		"query_key", sq.QueryKey,
		"sent", len(sentRows),
	)
	return len(sentRows), nil
}

func (e *Engine) resolveEmail(ctx context.Context, userID string) string {
	user, err := e.users.GetByID(ctx, nil, userID)
	if err != nil {
		e.log.Warn("User lookup failed; using default recipient", "user_id", userID, "error", err.Error())
		return e.defaultEmail
	}
	if user == nil || user.Email == "" {
		return e.defaultEmail
	}
	return user.Email
}

func (e *Engine) sendEmail(ctx context.Context, sq *domain.StandingQuery, recipient string, match pinecone.Match) error {
	postURL := fmt.Sprintf("https://piazza.com/class/%s/post/%s", sq.CourseID, match.RootID)

	text := fmt.Sprintf(
		"Hello,\n\n"+
			"A new Piazza update has been created that is relevant to your question "+
			"%q in %s.\n\n"+
			"GP-TA has identified the post for you, titled: %q.\n"+
			"You can view it here: %s\n\n"+
			"Happy learning!\n"+
			"- The GP-TA Team",
		sq.Query, sq.CourseDisplayName, match.Title, postURL,
	)

	html := fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333333;">
  <p>A new Piazza update has been created that is relevant to your question
  <strong>"%s"</strong> in <strong>%s</strong>.</p>
  <p>GP-TA has identified the post for you, titled: <strong>"%s"</strong>.</p>
  <p><a href="%s" style="color: #1a73e8; text-decoration: none;">Click here to view the post</a></p>
  <p>Happy learning!<br>- The GP-TA Team</p>
</body>
</html>`, sq.Query, sq.CourseDisplayName, match.Title, postURL)

	_, err := e.sg.Send(ctx, sendgrid.SendEmailRequest{
		From:    sendgrid.EmailAddress{Name: sq.CourseDisplayName + " on GP-TA"},
		To:      []sendgrid.EmailAddress{{Email: recipient}},
		Subject: "GP-TA found a relevant post for " + sq.CourseDisplayName,
		Text:    text,
		HTML:    html,
	})
	return err
}
