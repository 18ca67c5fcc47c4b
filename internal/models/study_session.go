package models

import (
	"time"

	"gorm.io/gorm"
)

// StudySession is a video study room. RoomID is the identifier clients join with.
type StudySession struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RoomID          string     `gorm:"uniqueIndex;size:36;not null" json:"room_id"`
	Title           string     `gorm:"size:120;not null" json:"title"`
	Subject         string     `gorm:"size:80;index" json:"subject"`
	Description     string     `gorm:"size:1000" json:"description"`
	HostID          uint       `gorm:"not null;index" json:"host_id"`
	Host            User       `gorm:"foreignKey:HostID" json:"host"`
	MaxParticipants int        `gorm:"not null;default:8" json:"max_participants"`
	IsActive        bool       `gorm:"not null;default:true;index" json:"is_active"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	// ParticipantCount comes from the live room registry.
	ParticipantCount int            `gorm:"-" json:"participant_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// MediaState is a member's advertised audio/video/screen-share state.
type MediaState struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
}

// RoomMember is one live socket inside a study room.
type RoomMember struct {
	SocketID string     `json:"socket_id"`
	UserID   uint       `json:"user_id"`
	Username string     `json:"username"`
	PeerID   string     `json:"peer_id,omitempty"`
	Media    MediaState `json:"media"`
	JoinedAt time.Time  `json:"joined_at"`
}
