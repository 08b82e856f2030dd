package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/davenfroberg/gpta-backend/internal/handlers"
	"github.com/davenfroberg/gpta-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler         *handlers.AuthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	ChatHandler         *handlers.ChatHandler
	NotificationHandler *handlers.NotificationHandler
	TabHandler          *handlers.TabHandler
	MessageHandler      *handlers.MessageHandler
	FolderHandler       *handlers.FolderHandler
	GenPostHandler      *handlers.GenPostHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Tracing
	router.Use(otelgin.Middleware("gpta-backend"))
	router.Use(middleware.AttachTraceContext())

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/register", cfg.AuthHandler.Register)
		api.POST("/login", cfg.AuthHandler.Login)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Chat
	protected.GET("/chat/stream", cfg.ChatHandler.Stream)
	protected.POST("/chat", cfg.ChatHandler.Send)
	// Notifications
	protected.POST("/notifications", cfg.NotificationHandler.Create)
	protected.GET("/notifications", cfg.NotificationHandler.List)
	protected.DELETE("/notifications", cfg.NotificationHandler.Delete)
	// Tabs
	protected.POST("/tabs", cfg.TabHandler.Create)
	protected.GET("/tabs", cfg.TabHandler.List)
	protected.PATCH("/tabs/:tab_id", cfg.TabHandler.Rename)
	protected.DELETE("/tabs/:tab_id", cfg.TabHandler.Delete)
	// Messages
	protected.POST("/messages", cfg.MessageHandler.Create)
	protected.GET("/tabs/:tab_id/messages", cfg.MessageHandler.ListByTab)
	// Folders
	protected.GET("/folders/:course", cfg.FolderHandler.Get)
	// Post generation
	protected.POST("/generate-post", cfg.GenPostHandler.Generate)
	protected.POST("/post-to-piazza", cfg.GenPostHandler.Publish)

	return router
}
