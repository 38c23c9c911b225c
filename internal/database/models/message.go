package models

import (
	"time"
)

// Message represents an archived mailbox message. Rows are immutable after
// creation except for AttachmentsComplete, which flips to true once every
// discovered attachment has been transferred to blob storage.
type Message struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	SourceID  string  `gorm:"uniqueIndex;size:128;not null" json:"source_id"`
	ContentID *string `gorm:"uniqueIndex;size:998" json:"content_id"` // RFC 5322 Message-ID, when present
	ThreadID  string  `gorm:"index;size:128" json:"thread_id"`

	FromAddr  string `gorm:"size:998" json:"from"`
	ToAddrs   string `gorm:"type:text" json:"to"` // raw multi-address header value
	CcAddrs   string `gorm:"type:text" json:"cc"`
	BccAddrs  string `gorm:"type:text" json:"bcc"`
	Subject   string `gorm:"size:998" json:"subject"`
	InReplyTo string `gorm:"size:998" json:"in_reply_to"`
	Refs      string `gorm:"column:references_hdr;type:text" json:"references"`

	Body       string    `gorm:"type:text" json:"body"`
	OccurredAt time.Time `gorm:"index" json:"occurred_at"` // remote-assigned timestamp
	CreatedAt  time.Time `json:"ingested_at"`              // set once on first save

	AttachmentsComplete bool `gorm:"default:false" json:"attachments_complete"`

	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}
