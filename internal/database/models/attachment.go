package models

import (
	"time"
)

// Attachment links a message to a binary part that was successfully
// transferred to blob storage. A row exists only when both the download
// from the mailbox and the upload to the blob store succeeded.
type Attachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   uint      `gorm:"index;not null" json:"message_id"`
	PartRef     string    `gorm:"size:512;not null" json:"part_ref"` // remote part reference, used to avoid re-transfer
	Filename    string    `gorm:"size:255" json:"filename"`
	MimeType    string    `gorm:"size:255" json:"mime_type"`
	Size        int64     `json:"size"`
	ExternalID  string    `gorm:"size:128" json:"external_id"`
	ExternalURL string    `gorm:"size:500" json:"external_url"`
	CreatedAt   time.Time `json:"created_at"`
}
