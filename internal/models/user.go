// Package models contains the persisted records and API error types.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a registered student or administrator.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Username    string         `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email       string         `gorm:"uniqueIndex;size:254;not null" json:"email,omitempty"`
	Password    string         `gorm:"size:255" json:"-"`
	GoogleID    *string        `gorm:"uniqueIndex;size:64" json:"-"`
	DisplayName string         `gorm:"size:60" json:"display_name"`
	Bio         string         `gorm:"size:500" json:"bio"`
	University  string         `gorm:"size:120" json:"university"`
	Major       string         `gorm:"size:120" json:"major"`
	Year        string         `gorm:"size:20" json:"year"`
	AvatarURL   string         `gorm:"size:255" json:"avatar_url"`
	IsAdmin     bool           `gorm:"not null;default:false" json:"is_admin"`
	IsBanned    bool           `gorm:"not null;default:false;index" json:"is_banned"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Public strips fields only the owner or an admin should see.
func (u User) Public() User {
	u.Email = ""
	u.LastLoginAt = nil
	return u
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.Password != ""
}
