package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/maheshchichkoti/email-archiver/internal/database/models"
)

func testMessage(sourceID, contentID string) *models.Message {
	msg := &models.Message{
		SourceID:   sourceID,
		ThreadID:   "thread-" + sourceID,
		FromAddr:   "sender@example.com",
		ToAddrs:    "recipient@example.com",
		Subject:    "Subject of " + sourceID,
		Body:       "Body of " + sourceID,
		OccurredAt: time.Now(),
	}
	if contentID != "" {
		msg.ContentID = &contentID
	}
	return msg
}

func TestProperty_MessageIngestionIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	// Ingesting the same batch twice stores each message exactly once; the
	// second pass reports every message as a duplicate
	properties.Property("replayed_batch_stores_each_message_once", prop.ForAll(
		func(count uint) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewMessageService(db)

			n := int(count%10) + 1
			for i := 0; i < n; i++ {
				sourceID := fmt.Sprintf("src-%d", i)
				if err := service.SaveMessage(testMessage(sourceID, "<"+sourceID+"@example.com>")); err != nil {
					return false
				}
			}
			for i := 0; i < n; i++ {
				sourceID := fmt.Sprintf("src-%d", i)
				err := service.SaveMessage(testMessage(sourceID, "<"+sourceID+"@example.com>"))
				if err != ErrDuplicateMessage {
					return false
				}
			}

			total, err := service.CountMessages()
			if err != nil {
				return false
			}
			return total == int64(n)
		},
		gen.UInt(),
	))

	// A new provider ID carrying an already-seen content ID is the same
	// message redelivered; it must be rejected as a duplicate
	properties.Property("content_id_collision_is_duplicate", prop.ForAll(
		func(suffix uint) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewMessageService(db)

			contentID := fmt.Sprintf("<msg-%d@example.com>", suffix)
			if err := service.SaveMessage(testMessage("src-a", contentID)); err != nil {
				return false
			}

			err := service.SaveMessage(testMessage("src-b", contentID))
			if err != ErrDuplicateMessage {
				return false
			}

			total, countErr := service.CountMessages()
			return countErr == nil && total == 1
		},
		gen.UInt(),
	))

	properties.TestingRun(t)
}

func TestSaveMessageWithoutContentID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewMessageService(db)

	// Messages without a content identifier are deduplicated by provider ID
	// only; two of them must not collide with each other
	if err := service.SaveMessage(testMessage("src-1", "")); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := service.SaveMessage(testMessage("src-2", "")); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	total, err := service.CountMessages()
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 messages, got %d", total)
	}
}

func TestListIncompleteOrdering(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewMessageService(db)

	for i := 0; i < 3; i++ {
		if err := service.SaveMessage(testMessage(fmt.Sprintf("src-%d", i), "")); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	var middle models.Message
	if err := db.Where("source_id = ?", "src-1").First(&middle).Error; err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if err := service.MarkAttachmentsComplete(middle.ID); err != nil {
		t.Fatalf("MarkAttachmentsComplete failed: %v", err)
	}

	incomplete, err := service.ListIncomplete(10)
	if err != nil {
		t.Fatalf("ListIncomplete failed: %v", err)
	}
	if len(incomplete) != 2 {
		t.Fatalf("expected 2 incomplete messages, got %d", len(incomplete))
	}
	if incomplete[0].SourceID != "src-0" || incomplete[1].SourceID != "src-2" {
		t.Fatalf("unexpected ordering: %s, %s", incomplete[0].SourceID, incomplete[1].SourceID)
	}
}
