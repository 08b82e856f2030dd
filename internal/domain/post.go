package domain

// Post tracks the change/summarization state of one forum post.
//
// Timestamps are ISO-8601 UTC strings, not time.Time: diff ordering and the
// summarizer's "major update newer than summary" scan both rely on
// lexicographic comparison, and string storage round-trips legacy values
// byte for byte.
type Post struct {
	CourseID       string `gorm:"primaryKey;column:course_id;index:idx_posts_course_summary,priority:1" json:"course_id"`
	PostID         string `gorm:"primaryKey;column:post_id" json:"post_id"`
	PostTitle      string `gorm:"column:post_title" json:"post_title"`
	CreatedTime    string `gorm:"column:created_time" json:"created_time"`
	IsAnnouncement bool   `gorm:"not null;default:false;column:is_announcement" json:"is_announcement"`

	CurrentSummary     string `gorm:"column:current_summary" json:"current_summary"`
	SummaryLastUpdated string `gorm:"not null;default:'1970-01-01T00:00:00Z';column:summary_last_updated;index:idx_posts_course_summary,priority:2" json:"summary_last_updated"`
	LastUpdated        string `gorm:"column:last_updated" json:"last_updated"`
	LastMajorUpdate    string `gorm:"column:last_major_update" json:"last_major_update"`
	NumChanges         int    `gorm:"not null;default:0;column:num_changes" json:"num_changes"`
	NeedsNewSummary    bool   `gorm:"not null;default:false;column:needs_new_summary" json:"needs_new_summary"`
}

func (Post) TableName() string { return "piazza_posts" }

// PostDiff is one append-only change record. SortKey is "{timestamp}#{seq}":
// lexicographic order on it is the diff log's total order.
type PostDiff struct {
	PostKey   string `gorm:"primaryKey;column:post_key" json:"post_key"` // "{course_id}#{post_id}"
	SortKey   string `gorm:"primaryKey;column:sort_key" json:"sort_key"` // "{timestamp}#{seq}"
	CourseID  string `gorm:"not null;column:course_id" json:"course_id"`
	PostID    string `gorm:"not null;column:post_id" json:"post_id"`
	Timestamp string `gorm:"not null;column:timestamp" json:"timestamp"`
	Type      string `gorm:"not null;column:type" json:"type"`
	Subject   string `gorm:"column:subject" json:"subject"`
	Content   string `gorm:"column:content" json:"content"`
}

func (PostDiff) TableName() string { return "piazza_post_diffs" }

// ProcessedUpdate is the feed poller's watermark: the change-log length last
// seen for a post. A post is enqueued only when the observed length grows.
type ProcessedUpdate struct {
	CourseID  string `gorm:"primaryKey;column:course_id"`
	PostID    string `gorm:"primaryKey;column:post_id"`
	LogLength int    `gorm:"not null;default:0;column:log_length"`
	UpdatedAt string `gorm:"column:updated_at"`
}

func (ProcessedUpdate) TableName() string { return "processed_updates" }
