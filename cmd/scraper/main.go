package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	pcclient "github.com/davenfroberg/gpta-backend/internal/clients/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/clients/sendgrid"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/ingest/chunks"
	"github.com/davenfroberg/gpta-backend/internal/ingest/posts"
	"github.com/davenfroberg/gpta-backend/internal/ingest/scrape"
	"github.com/davenfroberg/gpta-backend/internal/platform/db"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/platform/redisconn"
	"github.com/davenfroberg/gpta-backend/internal/platform/tracing"
	"github.com/davenfroberg/gpta-backend/internal/queue"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

func main() {
	mode := flag.String("mode", "incremental", "scrape mode: full or incremental")
	course := flag.String("course", "", "course display name (full mode; empty scrapes all active courses)")
	flag.Parse()

	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

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

	// Repos
	chunkRepo := repos.NewChunkRepo(thePG, log)
	postRepo := repos.NewPostRepo(thePG, log)
	diffRepo := repos.NewDiffRepo(thePG, log)

	// Clients
	piazzaClient, err := piazza.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init PiazzaClient", "error", err)
		os.Exit(1)
	}
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

	// Announcement email is optional; the scrape proceeds without it.
	var mailer posts.Mailer
	if sg, sgErr := sendgrid.NewFromEnv(log); sgErr != nil {
		log.Warn("Could not init SendGridClient; announcement email disabled", "error", sgErr)
	} else if am, amErr := posts.NewAnnouncementMailer(log, sg); amErr != nil {
		log.Warn("Could not init announcement mailer; announcement email disabled", "error", amErr)
	} else {
		mailer = am
	}

	chunkManager, err := chunks.NewManager(log, chunkRepo, vectorStore)
	if err != nil {
		log.Error("Could not init chunk manager", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Tracing
	if shutdown := tracing.Init(ctx, log, tracing.Config{ServiceName: "gpta-scraper"}); shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}
	tracer := otel.Tracer("gpta-backend")

	switch *mode {
	case "full":
		scraper, err := scrape.NewFullScraper(log, piazzaClient, courses, chunkManager)
		if err != nil {
			log.Error("Could not init full scraper", "error", err)
			os.Exit(1)
		}
		names := []string{*course}
		if *course == "" {
			names = names[:0]
			for _, c := range courses.Active() {
				names = append(names, c.DisplayName)
			}
		}
		for _, name := range names {
			runCtx, span := tracer.Start(ctx, "scrape.full")
			n, err := scraper.Run(runCtx, name)
			span.End()
			if err != nil {
				log.Error("Full scrape failed", "course", name, "error", err)
				os.Exit(1)
			}
			log.Info("Full scrape complete", "course", name, "posts", n)
		}

	case "incremental":
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
		postManager, err := posts.NewManager(log, postRepo, diffRepo, mailer)
		if err != nil {
			log.Error("Could not init post manager", "error", err)
			os.Exit(1)
		}
		scraper, err := scrape.NewIncrementalScraper(log, piazzaClient, courses, chunkManager, postManager, updateQueue)
		if err != nil {
			log.Error("Could not init incremental scraper", "error", err)
			os.Exit(1)
		}
		runCtx, span := tracer.Start(ctx, "scrape.incremental")
		n, err := scraper.Run(runCtx)
		span.End()
		if err != nil {
			log.Error("Incremental scrape failed", "error", err)
			os.Exit(1)
		}
		log.Info("Incremental scrape complete", "posts", n)

	default:
		fmt.Printf("unknown mode %q (want full or incremental)\n", *mode)
		os.Exit(2)
	}
}
