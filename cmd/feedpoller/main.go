package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/ingest/feedpoll"
	"github.com/davenfroberg/gpta-backend/internal/platform/db"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/redisconn"
	"github.com/davenfroberg/gpta-backend/internal/platform/tracing"
	"github.com/davenfroberg/gpta-backend/internal/queue"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

func main() {
	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	ctx := context.Background()
	if shutdown := tracing.Init(ctx, log, tracing.Config{ServiceName: "gpta-feedpoller"}); shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	// Courses
	courses, err := config.Load()
	if err != nil {
		log.Error("Could not load course roster", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	seenRepo := repos.NewProcessedUpdateRepo(postgresService.DB(), log)

	// Redis queue
	rdb, err := redisconn.New(log)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	updateQueue, err := queue.New(log, rdb)
	if err != nil {
		log.Error("Could not init update queue", "error", err)
		os.Exit(1)
	}

	// Piazza
	piazzaClient, err := piazza.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init PiazzaClient", "error", err)
		os.Exit(1)
	}

	poller, err := feedpoll.New(log, piazzaClient, courses, seenRepo, updateQueue)
	if err != nil {
		log.Error("Could not init feed poller", "error", err)
		os.Exit(1)
	}
	runCtx, span := otel.Tracer("gpta-backend").Start(ctx, "feedpoll.run")
	n, err := poller.Run(runCtx)
	span.End()
	if err != nil {
		log.Error("Feed poll failed", "error", err)
		os.Exit(1)
	}
	log.Info("Feed poll complete", "enqueued", n)
}
