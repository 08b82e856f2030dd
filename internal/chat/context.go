package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/platform/pinecone"
	"github.com/davenfroberg/gpta-backend/internal/repos"
)

const (
	// ChunksToUse is the retrieval width for a chat query.
	ChunksToUse = 9
	// ClosenessThreshold drops retrieval hits too far from the query.
	ClosenessThreshold = 0.35
	// CitationThresholdMultiplier gates which hits earn a UI citation,
	// relative to the top hit's score.
	CitationThresholdMultiplier = 0.7
)

const noContextSentinel = "There is no relevant context on Piazza which helps answer this question."

// welcomePostTitle is the forum's boilerplate first post; it matches almost
// anything and cites nothing useful.
const welcomePostTitle = "Welcome to Piazza!"

const discussionSeparator = "\n\n(--- discussion reply ---)\n\n"

// Citation is one entry of the emitted citation list.
type Citation struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	PostNumber int    `json:"post_number,omitempty"`
}

// Assembled is everything the streaming answerer needs from retrieval.
type Assembled struct {
	Context   string
	TopChunks []pinecone.Match
	Citations []Citation

	// PostNumbers maps root post id to its display number, for the prompt's
	// citation prelude.
	PostNumbers map[string]int
}

// Assembler hydrates vector search hits back into readable context via the
// chunk table.
type Assembler struct {
	log     *logger.Logger
	vectors pinecone.VectorStore
	chunks  repos.ChunkRepo
}

func NewAssembler(log *logger.Logger, vectors pinecone.VectorStore, chunks repos.ChunkRepo) (*Assembler, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if vectors == nil || chunks == nil {
		return nil, fmt.Errorf("vector store and chunk repo required")
	}
	return &Assembler{
		log:     log.With("service", "ContextAssembler"),
		vectors: vectors,
		chunks:  chunks,
	}, nil
}

type contextChunk struct {
	date   string
	text   string
	rootID string
}

// Assemble retrieves, filters, hydrates, and formats context for one query.
func (a *Assembler) Assemble(ctx context.Context, query, courseID string, prioritizeInstructor bool) (*Assembled, error) {
	hits, err := a.vectors.Search(ctx, query, courseID, ChunksToUse)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	topChunks := make([]pinecone.Match, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < ClosenessThreshold {
			continue
		}
		topChunks = append(topChunks, hit)
	}
	a.log.Info("Retrieved context chunks",
		"course_id", courseID,
		"hits", len(hits),
		"kept", len(topChunks),
	)

	var pieces []contextChunk
	for _, hit := range topChunks {
		texts, err := a.hydrate(ctx, hit, prioritizeInstructor)
		if err != nil {
			return nil, err
		}
		for _, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			pieces = append(pieces, contextChunk{date: hit.Date, text: text, rootID: hit.RootID})
		}
	}

	postNumbers := postNumberMap(topChunks)
	return &Assembled{
		Context:     formatContext(pieces, postNumbers, topChunks),
		TopChunks:   topChunks,
		Citations:   BuildCitations(topChunks),
		PostNumbers: postNumbers,
	}, nil
}

// hydrate routes one hit to the builder for its blob type.
func (a *Assembler) hydrate(ctx context.Context, hit pinecone.Match, prioritizeInstructor bool) ([]string, error) {
	switch hit.Type {
	case "i_answer", "s_answer", "answer":
		return a.answerContext(ctx, hit.ParentID, hit.ChunkID)
	case "question":
		text, err := a.questionContext(ctx, hit.BlobID, prioritizeInstructor)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	case "discussion", "followup", "feedback":
		text, err := a.discussionContext(ctx, hit.ParentID, hit.BlobID, hit.ChunkID)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	default:
		return a.answerContext(ctx, hit.ParentID, hit.ChunkID)
	}
}

func (a *Assembler) answerContext(ctx context.Context, parentID, chunkID string) ([]string, error) {
	rows, err := a.chunks.GetByKeys(ctx, nil, []repos.ChunkKey{{ParentID: parentID, ID: chunkID}})
	if err != nil {
		return nil, fmt.Errorf("answer context: %w", err)
	}
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		texts = append(texts, row.ChunkText)
	}
	return texts, nil
}

// questionContext swaps a retrieved question for its answers: the user wants
// the resolution, not an echo of the question.
func (a *Assembler) questionContext(ctx context.Context, blobID string, prioritizeInstructor bool) (string, error) {
	rows, err := a.chunks.ListByParent(ctx, nil, blobID)
	if err != nil {
		return "", fmt.Errorf("question context: %w", err)
	}

	title := "Unknown title"
	questionText := ""
	var instructorChunks, studentChunks []string
	instructorName := ""
	studentEndorsed := false

	for _, row := range rows {
		switch row.Type {
		case "question":
			title = row.Title
			if questionText == "" {
				questionText = row.ChunkText
			}
		case "i_answer":
			instructorChunks = append(instructorChunks, row.ChunkText)
			if instructorName == "" {
				instructorName = row.AuthorName
			}
		case "s_answer":
			studentChunks = append(studentChunks, row.ChunkText)
			if row.Endorsement == "yes" {
				studentEndorsed = true
			}
		}
	}
	if instructorName == "" {
		instructorName = "<unknown instructor name>"
	}

	return formatQuestionContext(questionFormatterInput{
		Title:                title,
		QuestionText:         questionText,
		InstructorChunks:     instructorChunks,
		StudentChunks:        studentChunks,
		InstructorName:       instructorName,
		StudentEndorsed:      studentEndorsed,
		PrioritizeInstructor: prioritizeInstructor,
	}), nil
}

type questionFormatterInput struct {
	Title                string
	QuestionText         string
	InstructorChunks     []string
	StudentChunks        []string
	InstructorName       string
	StudentEndorsed      bool
	PrioritizeInstructor bool
}

func formatQuestionContext(in questionFormatterInput) string {
	var parts []string

	instructorAnswer := strings.Join(in.InstructorChunks, " ")
	studentAnswer := strings.Join(in.StudentChunks, " ")

	if instructorAnswer != "" {
		parts = append(parts,
			fmt.Sprintf("Instructor's (name=%s) answer to question with title: %q:", in.InstructorName, in.Title),
			"",
			instructorAnswer,
			"",
		)
	}

	includeStudent := studentAnswer != "" &&
		(instructorAnswer == "" || !in.PrioritizeInstructor || in.StudentEndorsed)
	if includeStudent {
		endorsed := ""
		if in.StudentEndorsed {
			endorsed = "instructor-endorsed "
		}
		parts = append(parts,
			fmt.Sprintf("Peer student's %sanswer to question with title: %q:", endorsed, in.Title),
			"",
			studentAnswer,
			"",
		)
	} else if instructorAnswer == "" {
		parts = append(parts,
			"Someone asked the following question but there are no answers yet:",
			"",
			in.QuestionText,
			"",
		)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (a *Assembler) discussionContext(ctx context.Context, parentID, blobID, chunkID string) (string, error) {
	var texts []string

	rows, err := a.chunks.GetByKeys(ctx, nil, []repos.ChunkKey{{ParentID: parentID, ID: chunkID}})
	if err != nil {
		return "", fmt.Errorf("discussion context: %w", err)
	}
	for _, row := range rows {
		texts = append(texts, row.ChunkText)
	}

	replies, err := a.chunks.ListByParent(ctx, nil, blobID)
	if err != nil {
		return "", fmt.Errorf("discussion replies: %w", err)
	}
	for _, row := range replies {
		texts = append(texts, row.ChunkText)
	}

	return strings.Join(texts, discussionSeparator), nil
}

func postNumberMap(topChunks []pinecone.Match) map[string]int {
	out := map[string]int{}
	for _, hit := range topChunks {
		if hit.RootPostNum == 0 || hit.Title == welcomePostTitle {
			continue
		}
		if _, ok := out[hit.RootID]; !ok {
			out[hit.RootID] = hit.RootPostNum
		}
	}
	return out
}

// formatContext renders the final prompt context block. The citation prelude
// tells the model which post numbers it may reference.
func formatContext(pieces []contextChunk, postNumbers map[string]int, topChunks []pinecone.Match) string {
	var b strings.Builder
	b.WriteString("===== CONTEXT START =====\n")

	if len(pieces) == 0 {
		b.WriteString(noContextSentinel)
		b.WriteString("\n===== CONTEXT END =====")
		return b.String()
	}

	var available []string
	seen := map[int]bool{}
	for _, hit := range topChunks {
		n, ok := postNumbers[hit.RootID]
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		available = append(available, "@"+strconv.Itoa(n))
	}
	if len(available) > 0 {
		b.WriteString("Available citations: " + strings.Join(available, ", ") + "\n")
	}
	b.WriteString("\n")

	for i, piece := range pieces {
		b.WriteString(fmt.Sprintf("[Relevance Rank: %d/%d] [Updated date: %s]", i+1, len(pieces), piece.date))
		if n, ok := postNumbers[piece.rootID]; ok {
			title := ""
			for _, hit := range topChunks {
				if hit.RootID == piece.rootID {
					title = hit.Title
					break
				}
			}
			b.WriteString(fmt.Sprintf(" [From Post @%d: %q]", n, title))
		}
		b.WriteString("\n")
		b.WriteString("---\n" + piece.text + "\n---\n")
	}
	b.WriteString("===== CONTEXT END =====")
	return b.String()
}

// BuildCitations derives the UI citation list from the retrieval hits:
// relevance-gated against the top score, deduplicated by (url, title), with
// a later hit's post number upgrading an earlier entry that lacked one.
func BuildCitations(topChunks []pinecone.Match) []Citation {
	if len(topChunks) == 0 {
		return nil
	}
	topScore := topChunks[0].Score

	var citations []Citation
	for _, hit := range topChunks {
		if hit.Title == welcomePostTitle {
			continue
		}
		if hit.Score < CitationThresholdMultiplier*topScore {
			continue
		}
		c := Citation{
			Title:      hit.Title,
			URL:        fmt.Sprintf("https://piazza.com/class/%s/post/%s", hit.CourseID, hit.RootID),
			PostNumber: hit.RootPostNum,
		}

		upgraded := false
		for i := range citations {
			if citations[i].URL == c.URL && citations[i].Title == c.Title {
				if citations[i].PostNumber == 0 && c.PostNumber != 0 {
					citations[i].PostNumber = c.PostNumber
				}
				upgraded = true
				break
			}
		}
		if !upgraded {
			citations = append(citations, c)
		}
	}
	return citations
}
