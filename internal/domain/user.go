package domain

import (
	"time"
)

type User struct {
	UserID       string    `gorm:"primaryKey;column:user_id" json:"user_id"`
	Email        string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Name         string    `gorm:"not null;column:name" json:"name"`
	PasswordHash string    `gorm:"not null;column:password_hash" json:"-"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Tab is a chat conversation container in the student UI.
type Tab struct {
	UserID    string `gorm:"primaryKey;column:user_id" json:"user_id"`
	TabID     string `gorm:"primaryKey;column:tab_id" json:"tab_id"`
	Name      string `gorm:"not null;column:name" json:"name"`
	Course    string `gorm:"column:course" json:"course"`
	CreatedAt string `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt string `gorm:"column:updated_at" json:"updated_at"`
}

func (Tab) TableName() string { return "tabs" }

// Message is one chat turn inside a tab. SortKey is "{tab_id}#{created_at}" so
// a tab's history reads back in creation order with a prefix scan, matching
// the retrieval pattern the handlers use.
type Message struct {
	UserID              string `gorm:"primaryKey;column:user_id;index:idx_messages_lookup,priority:1" json:"user_id"`
	SortKey             string `gorm:"primaryKey;column:sort_key" json:"tab_id#created_at"`
	MessageID           string `gorm:"not null;column:message_id;index:idx_messages_lookup,priority:3" json:"message_id"`
	TabID               string `gorm:"not null;column:tab_id;index:idx_messages_lookup,priority:2" json:"tab_id"`
	Role                string `gorm:"not null;column:role" json:"role"`
	Content             string `gorm:"column:content" json:"content"`
	Citations           string `gorm:"column:citations" json:"citations,omitempty"`
	NotificationCreated bool   `gorm:"not null;default:false;column:notification_created" json:"notification_created"`
	CreatedAt           string `gorm:"not null;column:created_at" json:"created_at"`
}

func (Message) TableName() string { return "messages" }
