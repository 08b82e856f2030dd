package queue

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

func testQueue(t *testing.T) UpdateQueue {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run queue integration tests")
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	q, err := New(log, rdb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q
}

func TestQueuePublishReceive(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	updates := []Update{
		{CourseID: "net1", PostID: "p1"},
		{CourseID: "net1", PostID: "p2"},
		{CourseID: "net2", PostID: "p3"},
	}
	if err := q.Publish(ctx, updates...); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 queued, got %d", n)
	}

	batch, err := q.Receive(ctx, 10, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 received, got %d", len(batch))
	}
	for i := range updates {
		if batch[i] != updates[i] {
			t.Fatalf("order lost at %d: %+v", i, batch[i])
		}
	}
}

func TestQueueReceiveTimeout(t *testing.T) {
	q := testQueue(t)
	batch, err := q.Receive(context.Background(), 10, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected empty batch on timeout, got %v", batch)
	}
}

func TestQueueRequeueGoesFirst(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	if err := q.Publish(ctx, Update{CourseID: "net1", PostID: "new"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	failed := []Update{
		{CourseID: "net1", PostID: "retry1"},
		{CourseID: "net1", PostID: "retry2"},
	}
	if err := q.Requeue(ctx, failed...); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	batch, err := q.Receive(ctx, 10, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	want := []string{"retry1", "retry2", "new"}
	if len(batch) != len(want) {
		t.Fatalf("expected %d updates, got %d", len(want), len(batch))
	}
	for i, id := range want {
		if batch[i].PostID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, batch[i].PostID)
		}
	}
}

func TestQueueDropsMalformedEntries(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	uq := q.(*updateQueue)
	if err := uq.rdb.RPush(ctx, uq.key, "not json", `{"course_id":"","post_id":""}`).Err(); err != nil {
		t.Fatalf("seed malformed: %v", err)
	}
	if err := q.Publish(ctx, Update{CourseID: "net1", PostID: "ok"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	batch, err := q.Receive(ctx, 10, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(batch) != 1 || batch[0].PostID != "ok" {
		t.Fatalf("malformed entries must be dropped, got %v", batch)
	}
}
