package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	pcclient "github.com/davenfroberg/gpta-backend/internal/clients/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/clients/sendgrid"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/notify"
	"github.com/davenfroberg/gpta-backend/internal/platform/db"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/platform/tracing"
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
	if shutdown := tracing.Init(ctx, log, tracing.Config{ServiceName: "gpta-notifier"}); shutdown != nil {
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
	standingQueryRepo := repos.NewStandingQueryRepo(thePG, log)
	sentNotificationRepo := repos.NewSentNotificationRepo(thePG, log)
	userRepo := repos.NewUserRepo(thePG, log)

	// Clients
	pineconeClient, err := pcclient.New(log, pcclient.Config{
		APIKey: envutil.Str("PINECONE_API_KEY", ""),
	})
	if err != nil {
		log.Error("Could not init PineconeClient", "error", err)
		os.Exit(1)
	}
	vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
	if err != nil {
		log.Error("Could not init vector store", "error", err)
		os.Exit(1)
	}
	sendgridClient, err := sendgrid.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init SendGridClient", "error", err)
		os.Exit(1)
	}

	engine, err := notify.NewEngine(log, courses, vectorStore, standingQueryRepo, sentNotificationRepo, userRepo, sendgridClient)
	if err != nil {
		log.Error("Could not init notification engine", "error", err)
		os.Exit(1)
	}
	runCtx, span := otel.Tracer("gpta-backend").Start(ctx, "notify.run")
	sent, err := engine.Run(runCtx)
	span.End()
	if err != nil {
		log.Error("Notification run failed", "error", err)
		os.Exit(1)
	}
	log.Info("Notification run complete", "emails_sent", sent)
}
