package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/davenfroberg/gpta-backend/internal/clients/openai"
	"github.com/davenfroberg/gpta-backend/internal/config"
	"github.com/davenfroberg/gpta-backend/internal/domain"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

// SummarizeWindowDays is how far back the catch-me-up digest looks.
const SummarizeWindowDays = 2

// Transport delivers typed chat events to one connected client. Sends are
// serialized by the caller; implementations need not be concurrency-safe.
type Transport interface {
	SendProgress(message string) error
	SendStart() error
	SendChunk(message string) error
	SendCitations(citations []Citation) error
	SendDone(needsMoreContext bool) error
}

// Request is one user chat message.
type Request struct {
	UserID               string
	ConnectionID         string
	TabID                string
	Query                string
	Course               string
	GPTModel             string
	PrioritizeInstructor bool
}

// Service routes chat requests by intent and streams answers back over the
// caller's transport.
type Service struct {
	log        *logger.Logger
	courses    *config.Courses
	assembler  *Assembler
	ai         openai.Client
	classifier Classifier
	postRepo   repos.PostRepo
	queryRepo  repos.StudentQueryRepo

	embedModel string
	now        func() time.Time
	jitter     func() time.Duration
}

func NewService(log *logger.Logger, courses *config.Courses, assembler *Assembler, ai openai.Client, classifier Classifier, postRepo repos.PostRepo, queryRepo repos.StudentQueryRepo) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if courses == nil || assembler == nil || ai == nil || postRepo == nil || queryRepo == nil {
		return nil, fmt.Errorf("chat service dependencies incomplete")
	}
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &Service{
		log:        log.With("service", "ChatService"),
		courses:    courses,
		assembler:  assembler,
		ai:         ai,
		classifier: classifier,
		postRepo:   postRepo,
		queryRepo:  queryRepo,
		embedModel: "text-embedding-3-small",
		now:        time.Now,
		jitter: func() time.Duration {
			return time.Duration(5+rand.Intn(26)) * time.Millisecond
		},
	}, nil
}

// Handle processes one chat request end to end. The transport always
// receives a terminating done event, even on failure.
func (s *Service) Handle(ctx context.Context, req Request, transport Transport) error {
	started := s.now()

	if strings.TrimSpace(req.Query) == "" || strings.TrimSpace(req.Course) == "" {
		return fmt.Errorf("missing required fields: message or course")
	}
	course, ok := s.courses.ByName(req.Course)
	if !ok {
		return fmt.Errorf("unknown course %q", req.Course)
	}

	var embedding []float32
	if vecs, err := s.ai.Embed(ctx, []string{req.Query}); err != nil {
		// Classification degrades to keywords without it.
		s.log.Warn("Query embedding failed", "error", err.Error())
	} else if len(vecs) > 0 {
		embedding = vecs[0]
	}

	intent := s.classifier.Classify(req.Query, embedding)
	normalized := NormalizeQuery(req.Query)
	s.log.Info("Routing chat request",
		"course_id", course.NetworkID,
		"intent", string(intent),
		"user_id", req.UserID,
	)

	row := &domain.StudentQuery{
		QueryID:         uuid.NewString(),
		CourseID:        course.NetworkID,
		UserID:          req.UserID,
		ConnectionID:    req.ConnectionID,
		RawQuery:        req.Query,
		NormalizedQuery: normalized,
		Intent:          string(intent),
		GPTModel:        req.GPTModel,
		EmbeddingModel:  s.embedModel,
		Embedding:       embeddingJSON(embedding),
		CreatedAt:       started.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	var err error
	switch intent {
	case IntentGeneral:
		err = s.handleGeneral(ctx, course, normalized, req, transport, row)
	case IntentSummarize:
		err = s.handleSummarize(ctx, course, transport, row)
	case IntentOverview:
		err = s.handleOverview(transport)
	default:
		// Unknown intent is a clean no-op.
	}

	row.ProcessingTimeMs = s.now().Sub(started).Milliseconds()
	if persistErr := s.queryRepo.Create(ctx, nil, row); persistErr != nil {
		s.log.Error("Failed to persist query analytics",
			"query_id", row.QueryID,
			"error", persistErr.Error(),
		)
	}
	return err
}

func (s *Service) handleGeneral(ctx context.Context, course config.Course, query string, req Request, transport Transport, row *domain.StudentQuery) error {
	assembled, err := s.assembler.Assemble(ctx, query, course.NetworkID, req.PrioritizeInstructor)
	if err != nil {
		s.sendError(transport)
		return err
	}
	recordRetrieval(row, req.PrioritizeInstructor, assembled)

	prompt := fmt.Sprintf("Context:\n%s\n\nUser's Question: %s\nAnswer:", assembled.Context, query)

	if err := transport.SendProgress("Thinking of a response..."); err != nil {
		return err
	}
	if err := transport.SendStart(); err != nil {
		return err
	}

	parser := NewFrameParser()
	var sendErr error
	_, streamErr := s.ai.StreamText(ctx, generalSystemPrompt(s.now()), prompt, func(delta string) {
		if sendErr != nil {
			return
		}
		if out := parser.Feed(delta); out != "" {
			sendErr = transport.SendChunk(out)
		}
	})
	if sendErr == nil {
		if out := parser.Finish(); out != "" {
			sendErr = transport.SendChunk(out)
		}
	}

	needsMore := false
	if streamErr != nil {
		s.log.Error("LLM stream failed", "error", streamErr.Error())
		_ = transport.SendChunk(genericErrorMessage)
	} else {
		needsMore = parser.NeedsMoreContext()
	}
	row.NeedsMoreContext = boolPtr(needsMore)

	_ = transport.SendCitations(assembled.Citations)
	if err := transport.SendDone(needsMore); err != nil {
		return err
	}
	if streamErr != nil {
		return streamErr
	}
	return sendErr
}

func (s *Service) handleSummarize(ctx context.Context, course config.Course, transport Transport, row *domain.StudentQuery) error {
	since := s.now().UTC().AddDate(0, 0, -SummarizeWindowDays).Format("2006-01-02T15:04:05Z07:00")
	posts, err := s.postRepo.ListSummarizedSince(ctx, nil, course.NetworkID, since)
	if err != nil {
		s.sendError(transport)
		return err
	}
	row.NumSummariesProcessed = intPtr(len(posts))
	row.SummaryDays = intPtr(SummarizeWindowDays)

	// Asking to catch up signals the running summaries were consumed; flag
	// them so the summarizer starts fresh on the next update.
	for _, post := range posts {
		if post.NeedsNewSummary {
			continue
		}
		post.NeedsNewSummary = true
		if err := s.postRepo.Upsert(ctx, nil, post); err != nil {
			s.log.Warn("Failed to flag post for fresh summary",
				"course_id", post.CourseID,
				"post_id", post.PostID,
				"error", err.Error(),
			)
		}
	}

	if err := transport.SendProgress("Thinking of a response..."); err != nil {
		return err
	}
	if err := transport.SendStart(); err != nil {
		return err
	}

	if len(posts) == 0 {
		s.streamCanned(transport, allCaughtUp)
		return transport.SendDone(false)
	}

	var b strings.Builder
	for i, post := range posts {
		fmt.Fprintf(&b, "%d. **%s**\n   %s\n", i+1, post.PostTitle, post.CurrentSummary)
	}
	prompt := fmt.Sprintf("Recent post summaries for %s:\n\n%s\nTask: produce the catch-me-up digest.", course.DisplayName, b.String())

	var sendErr error
	_, streamErr := s.ai.StreamText(ctx, digestSystemPrompt, prompt, func(delta string) {
		if sendErr != nil {
			return
		}
		sendErr = transport.SendChunk(delta)
	})
	if streamErr != nil {
		s.log.Error("Digest stream failed", "error", streamErr.Error())
		_ = transport.SendChunk(genericErrorMessage)
	}
	if err := transport.SendDone(false); err != nil {
		return err
	}
	if streamErr != nil {
		return streamErr
	}
	return sendErr
}

func (s *Service) handleOverview(transport Transport) error {
	if err := transport.SendStart(); err != nil {
		return err
	}
	s.streamCanned(transport, overviewUnavailable)
	return transport.SendDone(false)
}

// streamCanned drips a fixed message word by word with a small random delay
// so canned responses feel like the live ones.
func (s *Service) streamCanned(transport Transport, message string) {
	words := strings.Split(message, " ")
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := transport.SendChunk(chunk); err != nil {
			return
		}
		time.Sleep(s.jitter())
	}
}

func (s *Service) sendError(transport Transport) {
	_ = transport.SendChunk(genericErrorMessage)
	_ = transport.SendDone(false)
}

func recordRetrieval(row *domain.StudentQuery, prioritizeInstructor bool, assembled *Assembled) {
	row.PrioritizeInstructor = boolPtr(prioritizeInstructor)
	row.NumChunksRetrieved = intPtr(len(assembled.TopChunks))

	scores := make([]float64, 0, len(assembled.TopChunks))
	total := 0.0
	for _, hit := range assembled.TopChunks {
		scores = append(scores, hit.Score)
		total += hit.Score
	}
	if len(scores) > 0 {
		row.TopScore = floatPtr(scores[0])
		row.AvgScore = floatPtr(total / float64(len(scores)))
	}
	if raw, err := json.Marshal(scores); err == nil {
		row.AllScores = datatypes.JSON(raw)
	}

	row.NumCitations = intPtr(len(assembled.Citations))
	nums := make([]int, 0, len(assembled.Citations))
	for _, c := range assembled.Citations {
		if c.PostNumber != 0 {
			nums = append(nums, c.PostNumber)
		}
	}
	if raw, err := json.Marshal(nums); err == nil {
		row.CitationPostNums = datatypes.JSON(raw)
	}
}

// embeddingJSON stores the vector as decimal strings so the floats survive
// the JSON round trip unchanged.
func embeddingJSON(embedding []float32) datatypes.JSON {
	if len(embedding) == 0 {
		return nil
	}
	decimals := make([]string, 0, len(embedding))
	for _, v := range embedding {
		decimals = append(decimals, strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	raw, err := json.Marshal(decimals)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
