package models

import (
	"time"
)

// User is a registered account. Identity fields are immutable after registration.
type User struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	DisplayName  string    `gorm:"not null" json:"display_name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}
