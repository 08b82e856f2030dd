package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// Update is one unit of ingestion work: a post whose feed log grew.
type Update struct {
	CourseID string `json:"course_id"`
	PostID   string `json:"post_id"`
}

// UpdateQueue is the buffer between the feed poller and the incremental
// scraper. Backed by a Redis list so work survives consumer restarts.
type UpdateQueue interface {
	Publish(ctx context.Context, updates ...Update) error

	// Receive blocks up to maxWait for the first update, then drains up to
	// max-1 more without waiting. Returns an empty batch on timeout.
	Receive(ctx context.Context, max int, maxWait time.Duration) ([]Update, error)

	// Requeue puts failed updates back at the head so they are retried
	// before newer work.
	Requeue(ctx context.Context, updates ...Update) error

	Len(ctx context.Context) (int64, error)
}

type updateQueue struct {
	log *logger.Logger
	rdb *goredis.Client
	key string
}

func New(log *logger.Logger, rdb *goredis.Client) (UpdateQueue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	key := strings.TrimSpace(envutil.Str("UPDATE_QUEUE_KEY", "gpta:updates"))
	return &updateQueue{
		log: log.With("service", "UpdateQueue"),
		rdb: rdb,
		key: key,
	}, nil
}

func (q *updateQueue) Publish(ctx context.Context, updates ...Update) error {
	if len(updates) == 0 {
		return nil
	}
	vals := make([]any, 0, len(updates))
	for _, u := range updates {
		b, err := json.Marshal(u)
		if err != nil {
			return err
		}
		vals = append(vals, b)
	}
	if err := q.rdb.RPush(ctx, q.key, vals...).Err(); err != nil {
		return fmt.Errorf("queue publish: %w", err)
	}
	return nil
}

func (q *updateQueue) Receive(ctx context.Context, max int, maxWait time.Duration) ([]Update, error) {
	if max <= 0 {
		max = 10
	}
	if maxWait <= 0 {
		maxWait = time.Second
	}

	// BLPOP returns redis.Nil on timeout.
	res, err := q.rdb.BLPop(ctx, maxWait, q.key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue receive: %w", err)
	}

	batch := make([]Update, 0, max)
	if u, ok := decode(q.log, res[len(res)-1]); ok {
		batch = append(batch, u)
	}

	for len(batch) < max {
		raw, err := q.rdb.LPop(ctx, q.key).Result()
		if err == goredis.Nil {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("queue receive: %w", err)
		}
		if u, ok := decode(q.log, raw); ok {
			batch = append(batch, u)
		}
	}
	return batch, nil
}

func (q *updateQueue) Requeue(ctx context.Context, updates ...Update) error {
	if len(updates) == 0 {
		return nil
	}
	// LPush reverses order; walk backwards so the head ends up first again.
	vals := make([]any, 0, len(updates))
	for i := len(updates) - 1; i >= 0; i-- {
		b, err := json.Marshal(updates[i])
		if err != nil {
			return err
		}
		vals = append(vals, b)
	}
	if err := q.rdb.LPush(ctx, q.key, vals...).Err(); err != nil {
		return fmt.Errorf("queue requeue: %w", err)
	}
	return nil
}

func (q *updateQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}

func decode(log *logger.Logger, raw string) (Update, bool) {
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		log.Warn("Dropping malformed queue entry", "error", err.Error())
		return Update{}, false
	}
	if strings.TrimSpace(u.CourseID) == "" || strings.TrimSpace(u.PostID) == "" {
		log.Warn("Dropping queue entry with missing fields", "raw", raw)
		return Update{}, false
	}
	return u, true
}
