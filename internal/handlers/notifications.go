package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davenfroberg/gpta-backend/internal/middleware"
	"github.com/davenfroberg/gpta-backend/internal/notify"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

type NotificationHandler struct {
	log       *logger.Logger
	registrar *notify.Registrar
	queries   repos.StandingQueryRepo
	messages  repos.MessageRepo
}

func NewNotificationHandler(log *logger.Logger, registrar *notify.Registrar, queries repos.StandingQueryRepo, messages repos.MessageRepo) *NotificationHandler {
	return &NotificationHandler{
		log:       log.With("handler", "NotificationHandler"),
		registrar: registrar,
		queries:   queries,
		messages:  messages,
	}
}

// Create registers a standing query. Registering a duplicate succeeds
// without side effects. When the request names the chat message that
// prompted it, that message is flagged so the UI stops offering the action.
func (nh *NotificationHandler) Create(c *gin.Context) {
	var req struct {
		Course    string `json:"course"`
		Query     string `json:"query"`
		TabID     string `json:"tab_id"`
		MessageID string `json:"message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Course == "" || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course and query are required"})
		return
	}

	userID := middleware.UserID(c)
	sq, err := nh.registrar.Register(c.Request.Context(), userID, req.Course, req.Query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.MessageID != "" {
		if err := nh.messages.MarkNotificationCreated(c.Request.Context(), nil, userID, req.MessageID); err != nil {
			nh.log.Warn("Failed to flag originating message",
				"message_id", req.MessageID,
				"error", err.Error(),
			)
		}
	}
	c.JSON(http.StatusOK, sq)
}

func (nh *NotificationHandler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	standing, err := nh.queries.ListByUser(c.Request.Context(), nil, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": standing})
}

func (nh *NotificationHandler) Delete(c *gin.Context) {
	var req struct {
		QueryKey string `json:"query_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.QueryKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query_key is required"})
		return
	}

	userID := middleware.UserID(c)
	if err := nh.registrar.Deregister(c.Request.Context(), userID, req.QueryKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
