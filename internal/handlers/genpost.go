package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davenfroberg/gpta-backend/internal/genpost"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type GenPostHandler struct {
	log     *logger.Logger
	genpost *genpost.Service
}

func NewGenPostHandler(log *logger.Logger, genpostService *genpost.Service) *GenPostHandler {
	return &GenPostHandler{
		log:     log.With("handler", "GenPostHandler"),
		genpost: genpostService,
	}
}

// Generate drafts a forum post from the student's description. Nothing is
// published; the draft goes back for review.
func (gh *GenPostHandler) Generate(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	draft, err := gh.genpost.GenerateDraft(c.Request.Context(), req.Description)
	if err != nil {
		gh.log.Error("Draft generation failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate post"})
		return
	}
	c.JSON(http.StatusOK, draft)
}

// Publish creates the reviewed draft as a question on the forum.
func (gh *GenPostHandler) Publish(c *gin.Context) {
	var req struct {
		Course  string   `json:"course"`
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Folders []string `json:"folders"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Course == "" || req.Title == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "course, title, and content are required"})
		return
	}

	posted, err := gh.genpost.Publish(c.Request.Context(), req.Course, req.Title, req.Content, req.Folders)
	if err != nil {
		gh.log.Error("Forum publish failed", "course", req.Course, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to post to Piazza"})
		return
	}
	c.JSON(http.StatusOK, posted)
}
