package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/davenfroberg/gpta-backend/internal/clients/openai"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/platform/db"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/tracing"
	"github.com/davenfroberg/gpta-backend/internal/repos"
	"github.com/davenfroberg/gpta-backend/internal/summarizer"
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
	if shutdown := tracing.Init(ctx, log, tracing.Config{ServiceName: "gpta-summarizer"}); shutdown != nil {
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
	thePG := postgresService.DB()
	postRepo := repos.NewPostRepo(thePG, log)
	diffRepo := repos.NewDiffRepo(thePG, log)

	// OpenAI
	openaiClient, err := openai.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}

	summ, err := summarizer.New(log, courses, postRepo, diffRepo, openaiClient)
	if err != nil {
		log.Error("Could not init summarizer", "error", err)
		os.Exit(1)
	}
	runCtx, span := otel.Tracer("gpta-backend").Start(ctx, "summarizer.run")
	processed, failed, err := summ.Run(runCtx)
	span.End()
	if err != nil {
		log.Error("Summarizer run failed", "error", err)
		os.Exit(1)
	}
	log.Info("Summarizer run complete", "processed", processed, "failed", failed)
}
