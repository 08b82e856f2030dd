package genpost

import (
	"context"
	"fmt"

	"github.com/davenfroberg/gpta-backend/internal/clients/openai"
	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

// Draft is an LLM-written forum post awaiting user review.
type Draft struct {
	PostTitle   string `json:"post_title"`
	PostContent string `json:"post_content"`
}

// Posted describes a question created on the forum.
type Posted struct {
	PostID  string `json:"post_id"`
	PostNum int    `json:"post_number"`
	URL     string `json:"url"`
}

const draftSystemPrompt = "You draft Piazza posts for students. " +
	"Given a student's description of their problem or question, write a post " +
	"an instructor can act on: a short specific title and a polite, clearly " +
	"structured body that states the question, what the student already tried, " +
	"and any relevant assignment or deadline details from the description. " +
	"Do not invent details the student did not provide. Plain text only."

var draftSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"post_title":   map[string]any{"type": "string"},
		"post_content": map[string]any{"type": "string"},
	},
	"required":             []string{"post_title", "post_content"},
	"additionalProperties": false,
}

// Service drafts posts with the LLM and publishes them to the forum.
type Service struct {
	log     *logger.Logger
	ai      openai.Client
	pz      piazza.Client
	courses *config.Courses
}

func NewService(log *logger.Logger, ai openai.Client, pz piazza.Client, courses *config.Courses) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil || pz == nil || courses == nil {
		return nil, fmt.Errorf("genpost dependencies incomplete")
	}
	return &Service{
		log:     log.With("service", "GenPostService"),
		ai:      ai,
		pz:      pz,
		courses: courses,
	}, nil
}

// GenerateDraft turns a student's free-form description into a post draft.
func (s *Service) GenerateDraft(ctx context.Context, description string) (*Draft, error) {
	out, err := s.ai.GenerateJSON(ctx, draftSystemPrompt, description, "piazza_post_draft", draftSchema)
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	draft := &Draft{}
	if title, ok := out["post_title"].(string); ok {
		draft.PostTitle = title
	}
	if content, ok := out["post_content"].(string); ok {
		draft.PostContent = content
	}
	if draft.PostTitle == "" || draft.PostContent == "" {
		return nil, fmt.Errorf("draft response missing post_title or post_content")
	}
	return draft, nil
}

// Publish creates the question on the forum. Posts default to anonymous; the
// assistant is posting on the student's behalf.
func (s *Service) Publish(ctx context.Context, courseName, title, content string, folders []string) (*Posted, error) {
	course, ok := s.courses.ByName(courseName)
	if !ok {
		return nil, fmt.Errorf("unknown course %q", courseName)
	}

	post, err := s.pz.CreatePost(ctx, course.NetworkID, piazza.CreatePostRequest{
		Type:      "question",
		Folders:   folders,
		Subject:   title,
		Content:   content,
		Anonymous: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create forum post: %w", err)
	}

	s.log.Info("Published post to forum",
		"course_id", course.NetworkID,
		"post_id", post.ID,
		"post_num", post.NR,
	)
	return &Posted{
		PostID:  post.ID,
		PostNum: post.NR,
		URL:     fmt.Sprintf("https://piazza.com/class/%s/post/%d", course.NetworkID, post.NR),
	}, nil
}
