package notify

import (
	"context"
	"fmt"

	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

const (
	// ThresholdAdder sits the alert threshold just above the best match at
	// registration time, so only better-than-baseline chunks fire email.
	ThresholdAdder = 0.1
	MinThreshold   = 0.38
	MaxThreshold   = 0.45

	// InitialMaxNotifications seeds the search window for a new query.
	InitialMaxNotifications = 3
)

// Registrar creates and removes standing queries.
type Registrar struct {
	log     *logger.Logger
	courses *config.Courses
	vectors pinecone.VectorStore
	queries repos.StandingQueryRepo
	sent    repos.SentNotificationRepo
}

func NewRegistrar(log *logger.Logger, courses *config.Courses, vectors pinecone.VectorStore, queries repos.StandingQueryRepo, sent repos.SentNotificationRepo) (*Registrar, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if courses == nil || vectors == nil || queries == nil || sent == nil {
		return nil, fmt.Errorf("registrar dependencies incomplete")
	}
	return &Registrar{
		log:     log.With("service", "NotificationRegistrar"),
		courses: courses,
		vectors: vectors,
		queries: queries,
		sent:    sent,
	}, nil
}

// Register creates a standing query for (user, course, query). Registering
// the same query twice is a no-op that returns the existing record.
func (r *Registrar) Register(ctx context.Context, userID, courseName, query string) (*domain.StandingQuery, error) {
	course, ok := r.courses.ByName(courseName)
	if !ok {
		return nil, fmt.Errorf("unknown course %q", courseName)
	}

	queryKey := course.NetworkID + "#" + query
	existing, err := r.queries.Get(ctx, nil, userID, queryKey)
	if err != nil {
		return nil, fmt.Errorf("load standing query: %w", err)
	}
	if existing != nil {
		r.log.Info("Standing query already registered", "user_id", userID, "query_key", queryKey)
		return existing, nil
	}

	threshold, topScore, err := r.registrationThreshold(ctx, query, course.NetworkID)
	if err != nil {
		return nil, err
	}

	sq := &domain.StandingQuery{
		UserID:                userID,
		QueryKey:              queryKey,
		CourseID:              course.NetworkID,
		Query:                 query,
		CourseDisplayName:     course.DisplayName,
		ClosestScore:          topScore,
		NotificationThreshold: threshold,
		MaxNotifications:      InitialMaxNotifications,
	}
	if err := r.queries.Upsert(ctx, nil, sq); err != nil {
		return nil, fmt.Errorf("store standing query: %w", err)
	}
	r.log.Info("Registered standing query",
		"user_id", userID,
		"query_key", queryKey,
		"threshold", threshold,
		"closest_score", topScore,
	)
	return sq, nil
}

// Deregister removes the standing query and its sent-notification dedup set.
func (r *Registrar) Deregister(ctx context.Context, userID, queryKey string) error {
	if err := r.queries.Delete(ctx, nil, userID, queryKey); err != nil {
		return fmt.Errorf("delete standing query: %w", err)
	}
	if err := r.sent.DeleteByQueryKey(ctx, nil, userID+"#"+queryKey); err != nil {
		return fmt.Errorf("delete sent notifications: %w", err)
	}
	return nil
}

// registrationThreshold anchors the alert threshold to the query's current
// best match: clamp(top1 + ThresholdAdder, MinThreshold, MaxThreshold).
func (r *Registrar) registrationThreshold(ctx context.Context, query, courseID string) (threshold, topScore float64, err error) {
	matches, err := r.vectors.Search(ctx, query, courseID, 1)
	if err != nil {
		return 0, 0, fmt.Errorf("baseline search: %w", err)
	}
	if len(matches) > 0 {
		topScore = matches[0].Score
	}
	return clamp(topScore+ThresholdAdder, MinThreshold, MaxThreshold), topScore, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
