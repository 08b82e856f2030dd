package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/middleware"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

type MessageHandler struct {
	log      *logger.Logger
	messages repos.MessageRepo
	tabs     repos.TabRepo
}

func NewMessageHandler(log *logger.Logger, messages repos.MessageRepo, tabs repos.TabRepo) *MessageHandler {
	return &MessageHandler{
		log:      log.With("handler", "MessageHandler"),
		messages: messages,
		tabs:     tabs,
	}
}

func (mh *MessageHandler) Create(c *gin.Context) {
	var req struct {
		TabID     string `json:"tab_id"`
		Role      string `json:"role"`
		Content   string `json:"content"`
		Citations string `json:"citations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TabID == "" || req.Role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tab_id and role are required"})
		return
	}
	if req.Role != "user" && req.Role != "assistant" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or assistant"})
		return
	}

	userID := middleware.UserID(c)
	tab, err := mh.tabs.Get(c.Request.Context(), nil, userID, req.TabID)
	if err != nil || tab == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tab not found"})
		return
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	msg := &domain.Message{
		UserID:    userID,
		SortKey:   req.TabID + "#" + now,
		MessageID: uuid.NewString(),
		TabID:     req.TabID,
		Role:      req.Role,
		Content:   req.Content,
		Citations: req.Citations,
		CreatedAt: now,
	}
	if err := mh.messages.Create(c.Request.Context(), nil, msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (mh *MessageHandler) ListByTab(c *gin.Context) {
	msgs, err := mh.messages.ListByTab(c.Request.Context(), nil, middleware.UserID(c), c.Param("tab_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
