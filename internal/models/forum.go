package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultTopicCategory is used when a topic is created without a category.
const DefaultTopicCategory = "general"

// Topic is a forum thread.
type Topic struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Category       string    `gorm:"size:50;not null;default:general;index" json:"category"`
	AuthorID       uint      `gorm:"not null;index" json:"author_id"`
	Author         User      `gorm:"foreignKey:AuthorID" json:"author"`
	IsPinned       bool      `gorm:"not null;default:false" json:"is_pinned"`
	IsLocked       bool      `gorm:"not null;default:false" json:"is_locked"`
	ViewCount      int64     `gorm:"not null;default:0" json:"view_count"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
	// PostCount is computed at query time.
	PostCount int64          `gorm:"->;-:migration" json:"post_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Post is a reply inside a topic.
type Post struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TopicID   uint           `gorm:"not null;index" json:"topic_id"`
	AuthorID  uint           `gorm:"not null;index" json:"author_id"`
	Author    User           `gorm:"foreignKey:AuthorID" json:"author"`
	ParentID  *uint          `gorm:"index" json:"parent_id,omitempty"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// CategoryCount is one row of the category listing.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
