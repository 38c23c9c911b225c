package models

import (
	"time"
)

// Credential holds the OAuth credential pair and sync frontier for the
// archived mailbox. Exactly one row exists once the mailbox has been
// authorized.
type Credential struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	AccessToken           string    `gorm:"type:text" json:"-"`
	RefreshTokenEncrypted string    `gorm:"type:text;not null" json:"-"`
	Expiry                time.Time `json:"expiry"`
	LastCursor            *string   `gorm:"size:64" json:"last_cursor"` // nil means never synced
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
