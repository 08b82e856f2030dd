package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davenfroberg/gpta-backend/internal/chat"
	"github.com/davenfroberg/gpta-backend/internal/middleware"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/realtime"
)

type ChatHandler struct {
	log  *logger.Logger
	hub  *realtime.Hub
	chat *chat.Service
}

func NewChatHandler(log *logger.Logger, hub *realtime.Hub, chatService *chat.Service) *ChatHandler {
	return &ChatHandler{
		log:  log.With("handler", "ChatHandler"),
		hub:  hub,
		chat: chatService,
	}
}

// Stream opens the SSE connection answers arrive on. The first event tells
// the client its connection_id.
func (ch *ChatHandler) Stream(c *gin.Context) {
	userID := middleware.UserID(c)
	client := ch.hub.NewClient(userID)
	defer ch.hub.Close(client)

	ch.hub.ServeHTTP(c.Writer, c.Request, client)
}

// Send submits a query; the answer streams over the SSE connection the
// request names. Responds as soon as the request is accepted.
func (ch *ChatHandler) Send(c *gin.Context) {
	var req struct {
		ConnectionID         string `json:"connection_id"`
		Message              string `json:"message"`
		Course               string `json:"course"`
		TabID                string `json:"tab_id"`
		Model                string `json:"model"`
		PrioritizeInstructor bool   `json:"prioritize_instructor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID := middleware.UserID(c)
	client, ok := ch.hub.Get(req.ConnectionID, userID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown connection_id"})
		return
	}

	chatReq := chat.Request{
		UserID:               userID,
		ConnectionID:         req.ConnectionID,
		TabID:                req.TabID,
		Query:                req.Message,
		Course:               req.Course,
		GPTModel:             req.Model,
		PrioritizeInstructor: req.PrioritizeInstructor,
	}

	// The SSE pump owns delivery; the chat run must not die with this
	// request's context.
	go func() {
		if err := ch.chat.Handle(context.Background(), chatReq, realtime.Transport{Client: client}); err != nil {
			ch.log.Error("Chat request failed",
				"user_id", userID,
				"connection_id", req.ConnectionID,
				"error", err.Error(),
			)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
}
