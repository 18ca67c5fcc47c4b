package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is a direct message between two users.
type Message struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SenderID    uint           `gorm:"not null;index:idx_messages_pair,priority:1" json:"sender_id"`
	Sender      User           `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	RecipientID uint           `gorm:"not null;index:idx_messages_pair,priority:2;index" json:"recipient_id"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// PartnerOf returns the other participant of the message from userID's point of view.
func (m *Message) PartnerOf(userID uint) uint {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// Conversation summarizes the thread with one partner.
type Conversation struct {
	Partner     User     `json:"partner"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int64    `json:"unread_count"`
}
