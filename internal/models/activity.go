package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one mutating request or administrative action.
type AuditLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       *uint             `gorm:"index" json:"user_id,omitempty"`
	Action       string            `gorm:"size:100;not null;index" json:"action"`
	Method       string            `gorm:"size:10" json:"method"`
	Path         string            `gorm:"size:255" json:"path"`
	Status       int               `json:"status"`
	ResourceType string            `gorm:"size:50;index" json:"resource_type"`
	ResourceID   string            `gorm:"size:64" json:"resource_id"`
	IPAddress    string            `gorm:"size:64" json:"ip_address"`
	UserAgent    string            `gorm:"size:255" json:"user_agent"`
	Changes      datatypes.JSONMap `json:"changes,omitempty"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}

// AnalyticsEvent is a logged user action used for dashboard metrics.
type AnalyticsEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    *uint             `gorm:"index" json:"user_id,omitempty"`
	SessionID string            `gorm:"size:64;index" json:"session_id,omitempty"`
	EventType string            `gorm:"size:64;not null;index" json:"event_type"`
	Path      string            `gorm:"size:255" json:"path,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	IPHash    string            `gorm:"size:64" json:"-"`
	UserAgent string            `gorm:"size:255" json:"-"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

// Visitor tracks a browser fingerprint across visits.
type Visitor struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	VisitorID   string    `gorm:"uniqueIndex;size:64;not null" json:"visitor_id"`
	UserID      *uint     `gorm:"index" json:"user_id,omitempty"`
	IPHash      string    `gorm:"size:64" json:"-"`
	UserAgent   string    `gorm:"size:255" json:"user_agent"`
	VisitCount  int64     `gorm:"not null;default:1" json:"visit_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"index" json:"last_seen_at"`
}
