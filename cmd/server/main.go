package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/davenfroberg/gpta-backend/internal/auth"
	"github.com/davenfroberg/gpta-backend/internal/chat"
	"github.com/davenfroberg/gpta-backend/internal/clients/openai"
	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	pcclient "github.com/davenfroberg/gpta-backend/internal/clients/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/folders"
	"github.com/davenfroberg/gpta-backend/internal/genpost"
	"github.com/davenfroberg/gpta-backend/internal/handlers"
	"github.com/davenfroberg/gpta-backend/internal/middleware"
	"github.com/davenfroberg/gpta-backend/internal/notify"
	"github.com/davenfroberg/gpta-backend/internal/platform/db"
	"github.com/davenfroberg/gpta-backend/internal/platform/envutil"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/platform/tracing"
	"github.com/davenfroberg/gpta-backend/internal/realtime"
	"github.com/davenfroberg/gpta-backend/internal/repos"
	"github.com/davenfroberg/gpta-backend/internal/server"
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
	if shutdown := tracing.Init(context.Background(), log, tracing.Config{
		ServiceName: "gpta-backend",
		Environment: envutil.Str("APP_ENV", "development"),
		Version:     envutil.Str("APP_VERSION", ""),
	}); shutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	// Courses
	log.Info("Loading course roster from main...")
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
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	postRepo := repos.NewPostRepo(thePG, log)
	tabRepo := repos.NewTabRepo(thePG, log)
	messageRepo := repos.NewMessageRepo(thePG, log)
	studentQueryRepo := repos.NewStudentQueryRepo(thePG, log)
	standingQueryRepo := repos.NewStandingQueryRepo(thePG, log)
	sentNotificationRepo := repos.NewSentNotificationRepo(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	openaiClient, err := openai.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
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

	// Services
	log.Info("Setting up Services from main...")
	authService, err := auth.New(log, userRepo, auth.ConfigFromEnv())
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}
	assembler, err := chat.NewAssembler(log, vectorStore, chunkRepo)
	if err != nil {
		log.Error("Could not init context assembler", "error", err)
		os.Exit(1)
	}
	chatService, err := chat.NewService(log, courses, assembler, openaiClient, nil, postRepo, studentQueryRepo)
	if err != nil {
		log.Error("Could not init ChatService", "error", err)
		os.Exit(1)
	}
	registrar, err := notify.NewRegistrar(log, courses, vectorStore, standingQueryRepo, sentNotificationRepo)
	if err != nil {
		log.Error("Could not init notification registrar", "error", err)
		os.Exit(1)
	}
	folderService, err := folders.New(log, piazzaClient, courses)
	if err != nil {
		log.Error("Could not init FolderService", "error", err)
		os.Exit(1)
	}
	genpostService, err := genpost.NewService(log, openaiClient, piazzaClient, courses)
	if err != nil {
		log.Error("Could not init GenPostService", "error", err)
		os.Exit(1)
	}

	// Realtime hub
	log.Info("Setting up realtime hub now...")
	hub := realtime.NewHub(log)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(log, hub, chatService)
	notificationHandler := handlers.NewNotificationHandler(log, registrar, standingQueryRepo, messageRepo)
	tabHandler := handlers.NewTabHandler(log, tabRepo, messageRepo)
	messageHandler := handlers.NewMessageHandler(log, messageRepo, tabRepo)
	folderHandler := handlers.NewFolderHandler(log, folderService)
	genpostHandler := handlers.NewGenPostHandler(log, genpostService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:         authHandler,
		AuthMiddleware:      authMiddleware,
		ChatHandler:         chatHandler,
		NotificationHandler: notificationHandler,
		TabHandler:          tabHandler,
		MessageHandler:      messageHandler,
		FolderHandler:       folderHandler,
		GenPostHandler:      genpostHandler,
	})

	port := envutil.Str("PORT", "8080")
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
