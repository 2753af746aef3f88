package model

import "time"

// User is an account that owns tasks.
type User struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	Name                  string     `gorm:"size:255;not null" json:"name"`
	Email                 string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string     `gorm:"not null" json:"-"`
	TelegramChatID        *int64     `gorm:"uniqueIndex" json:"telegram_chat_id,omitempty"`
	TelegramLinkCode      *string    `gorm:"size:16;uniqueIndex" json:"-"`
	TelegramLinkExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	Tasks                 []Task     `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
}
