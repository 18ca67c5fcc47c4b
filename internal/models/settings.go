package models

import "time"

// Well-known setting keys.
const (
	SettingRegistrationOpen = "registration_open"
	SettingMaintenanceMode  = "maintenance_mode"
	SettingAnnouncement     = "announcement"
	SettingMaxRoomPeers     = "max_room_peers"
)

// Setting is one key/value platform setting.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	IsPublic  bool      `gorm:"not null;default:false" json:"is_public"`
	UpdatedBy *uint     `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BlacklistedToken is a revoked JWT, kept until it would have expired anyway.
type BlacklistedToken struct {
	JTI       string    `gorm:"primaryKey;size:64" json:"jti"`
	UserID    uint      `gorm:"index" json:"user_id"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Feedback statuses and categories.
const (
	FeedbackOpen     = "open"
	FeedbackResolved = "resolved"
)

// Feedback is a user-submitted report or suggestion.
type Feedback struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Email     string    `gorm:"size:254" json:"email,omitempty"`
	Category  string    `gorm:"size:20;not null;default:general" json:"category"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Status    string    `gorm:"size:20;not null;default:open;index" json:"status"`
	AdminNote string    `gorm:"size:1000" json:"admin_note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
