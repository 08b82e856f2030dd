package domain

// StandingQuery is a user-registered query that produces an email whenever a
// newly indexed chunk scores above NotificationThreshold.
//
// MaxNotifications doubles as the vector-search width for the next
// notification run and as a lifetime sent counter. It only grows.
type StandingQuery struct {
	UserID                string  `gorm:"primaryKey;column:user_id" json:"user_id"`
	QueryKey              string  `gorm:"primaryKey;column:query_key" json:"course_id#query"` // "{course_id}#{query}"
	CourseID              string  `gorm:"not null;column:course_id" json:"course_id"`
	Query                 string  `gorm:"not null;column:query" json:"query"`
	CourseDisplayName     string  `gorm:"column:course_display_name" json:"course_display_name"`
	ClosestScore          float64 `gorm:"column:closest_score" json:"closest_score"`
	NotificationThreshold float64 `gorm:"not null;column:notification_threshold" json:"notification_threshold"`
	MaxNotifications      int     `gorm:"not null;column:max_notifications" json:"max_notifications"`
}

func (StandingQuery) TableName() string { return "followed_queries" }

// SentNotification existence means "this chunk already produced an email for
// this standing query". The row is the dedup set; no TTL.
type SentNotification struct {
	QueryKey string `gorm:"primaryKey;column:query_key" json:"query_key"` // "{user_id}#{course_id}#{query}"
	ChunkID  string `gorm:"primaryKey;column:chunk_id" json:"chunk_id"`
	UserID   string `gorm:"not null;column:user_id" json:"user_id"`
	CourseID string `gorm:"not null;column:course_id" json:"course_id"`
	Query    string `gorm:"not null;column:query" json:"query"`
}

func (SentNotification) TableName() string { return "notifications_sent" }
