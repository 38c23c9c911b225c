package services

import (
	"errors"
	"strings"

	"github.com/maheshchichkoti/email-archiver/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrMessageNotFound indicates the message was not found
	ErrMessageNotFound = errors.New("message not found")
	// ErrDuplicateMessage indicates the message was already archived. This is
	// an expected outcome of re-listing, not a failure.
	ErrDuplicateMessage = errors.New("message already archived")
)

// MessageService handles durable, uniqueness-enforcing persistence of
// archived messages and their attachment records
type MessageService struct {
	db *gorm.DB
}

// NewMessageService creates a new MessageService instance
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// SaveMessage stores a message exactly once. A second save with the same
// SourceID or ContentID returns ErrDuplicateMessage and leaves the stored
// row untouched; messages are never merged or updated.
func (s *MessageService) SaveMessage(msg *models.Message) error {
	var existing models.Message
	if err := s.db.Where("source_id = ?", msg.SourceID).First(&existing).Error; err == nil {
		return ErrDuplicateMessage
	}
	if msg.ContentID != nil && *msg.ContentID != "" {
		if err := s.db.Where("content_id = ?", *msg.ContentID).First(&existing).Error; err == nil {
			return ErrDuplicateMessage
		}
	}

	if err := s.db.Create(msg).Error; err != nil {
		// A concurrent writer can still lose the race to the unique index
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateMessage
		}
		return err
	}
	return nil
}

// GetMessage retrieves a message by ID with its attachments
func (s *MessageService) GetMessage(id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.Preload("Attachments").First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns archived messages, newest first
func (s *MessageService) ListMessages(limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Preload("Attachments").
		Order("occurred_at DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

// CountMessages returns the number of archived messages
func (s *MessageService) CountMessages() (int64, error) {
	var count int64
	err := s.db.Model(&models.Message{}).Count(&count).Error
	return count, err
}

// CountAttachments returns the number of archived attachment records
func (s *MessageService) CountAttachments() (int64, error) {
	var count int64
	err := s.db.Model(&models.Attachment{}).Count(&count).Error
	return count, err
}

// AddAttachment records one successfully transferred attachment
func (s *MessageService) AddAttachment(att *models.Attachment) error {
	return s.db.Create(att).Error
}

// HasAttachment reports whether a part of a message was already transferred
func (s *MessageService) HasAttachment(messageID uint, partRef string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Attachment{}).
		Where("message_id = ? AND part_ref = ?", messageID, partRef).
		Count(&count).Error
	return count > 0, err
}

// MarkAttachmentsComplete flips the completion flag once every discovered
// attachment of the message has a record
func (s *MessageService) MarkAttachmentsComplete(messageID uint) error {
	return s.db.Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("attachments_complete", true).Error
}

// ListIncomplete returns stored messages whose attachment pipeline has not
// finished, oldest first so retries drain in ingestion order
func (s *MessageService) ListIncomplete(limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.Where("attachments_complete = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
