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

type TabHandler struct {
	log      *logger.Logger
	tabs     repos.TabRepo
	messages repos.MessageRepo
}

func NewTabHandler(log *logger.Logger, tabs repos.TabRepo, messages repos.MessageRepo) *TabHandler {
	return &TabHandler{
		log:      log.With("handler", "TabHandler"),
		tabs:     tabs,
		messages: messages,
	}
}

func (th *TabHandler) Create(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		Course string `json:"course"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z07:00")
	tab := &domain.Tab{
		UserID:    middleware.UserID(c),
		TabID:     uuid.NewString(),
		Name:      req.Name,
		Course:    req.Course,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := th.tabs.Create(c.Request.Context(), nil, tab); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create tab"})
		return
	}
	c.JSON(http.StatusOK, tab)
}

func (th *TabHandler) List(c *gin.Context) {
	tabs, err := th.tabs.ListByUser(c.Request.Context(), nil, middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tabs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tabs": tabs})
}

func (th *TabHandler) Rename(c *gin.Context) {
	tabID := c.Param("tab_id")
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z07:00")
	if err := th.tabs.Rename(c.Request.Context(), nil, middleware.UserID(c), tabID, req.Name, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rename tab"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete removes a tab and its message history.
func (th *TabHandler) Delete(c *gin.Context) {
	userID := middleware.UserID(c)
	tabID := c.Param("tab_id")

	if err := th.messages.DeleteByTab(c.Request.Context(), nil, userID, tabID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete tab messages"})
		return
	}
	if err := th.tabs.Delete(c.Request.Context(), nil, userID, tabID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete tab"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
