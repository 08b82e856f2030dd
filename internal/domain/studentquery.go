package domain

import (
	"gorm.io/datatypes"
)

// StudentQuery is the analytics record persisted after every chat request.
// Writes are best-effort; a failed insert never fails the user's request.
//
// Embedding is stored as a JSON array of decimal strings so the floats
// round-trip without loss.
type StudentQuery struct {
	QueryID         string `gorm:"primaryKey;column:query_id" json:"query_id"`
	CourseID        string `gorm:"index;not null;column:course_id" json:"course_id"`
	UserID          string `gorm:"index;column:user_id" json:"user_id"`
	ConnectionID    string `gorm:"column:connection_id" json:"connection_id"`
	RawQuery        string `gorm:"not null;column:raw_query" json:"raw_query"`
	NormalizedQuery string `gorm:"not null;column:normalized_query" json:"normalized_query"`
	Intent          string `gorm:"not null;column:intent" json:"intent"`
	GPTModel        string `gorm:"column:gpt_model" json:"gpt_model"`
	EmbeddingModel  string `gorm:"column:embedding_model" json:"embedding_model"`

	Embedding datatypes.JSON `gorm:"column:embedding" json:"embedding,omitempty"`

	CreatedAt        string `gorm:"not null;column:created_at" json:"created_at"`
	ProcessingTimeMs int64  `gorm:"not null;default:0;column:processing_time_ms" json:"processing_time_ms"`

	// General-intent fields.
	PrioritizeInstructor *bool          `gorm:"column:prioritize_instructor" json:"prioritize_instructor,omitempty"`
	NeedsMoreContext     *bool          `gorm:"column:needs_more_context" json:"needs_more_context,omitempty"`
	NumChunksRetrieved   *int           `gorm:"column:num_chunks_retrieved" json:"num_chunks_retrieved,omitempty"`
	TopScore             *float64       `gorm:"column:top_score" json:"top_score,omitempty"`
	AvgScore             *float64       `gorm:"column:avg_score" json:"avg_score,omitempty"`
	AllScores            datatypes.JSON `gorm:"column:all_scores" json:"all_scores,omitempty"`
	NumCitations         *int           `gorm:"column:num_citations" json:"num_citations,omitempty"`
	CitationPostNums     datatypes.JSON `gorm:"column:citation_post_nums" json:"citation_post_nums,omitempty"`

	// Summarize-intent fields.
	NumSummariesProcessed *int `gorm:"column:num_summaries_processed" json:"num_summaries_processed,omitempty"`
	SummaryDays           *int `gorm:"column:summary_days" json:"summary_days,omitempty"`
}

func (StudentQuery) TableName() string { return "student_queries" }
