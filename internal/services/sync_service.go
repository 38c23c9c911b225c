package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maheshchichkoti/email-archiver/internal/database/models"
)

// ErrCycleInProgress indicates a sync cycle is already running. Cycles
// never overlap: a trigger that arrives mid-cycle is rejected, not queued.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// CycleTimeout bounds one full synchronization cycle. Cycles are
// serialized, so a remote call left hanging would otherwise block
// synchronization for good; every trigger site derives its context from
// this bound.
const CycleTimeout = 15 * time.Minute

const (
	// fallbackPageSize bounds one page of the recency listing
	fallbackPageSize = 100
	// fallbackMaxPages caps fallback-mode work per cycle; older messages
	// beyond the cap are intentionally left for a later incremental pass
	fallbackMaxPages = 5
	// incompleteRetryBatch bounds how many stored-but-incomplete messages
	// get their attachment pipeline re-run per cycle
	incompleteRetryBatch = 50
)

// SyncReport summarizes one synchronization cycle
type SyncReport struct {
	RunID       string     `json:"run_id"`
	Fallback    bool       `json:"fallback"`
	Listed      int        `json:"listed"`
	Stored      int        `json:"stored"`
	Duplicates  int        `json:"duplicates"`
	Failed      int        `json:"failed"`
	Attachments int        `json:"attachments"`
	Cursor      *string    `json:"cursor"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// SyncService runs the incremental synchronization cycle: list changes
// since the stored cursor, fetch and archive each new message with its
// attachments, then advance the cursor. One message's failure never aborts
// the batch; a listing failure aborts the cycle without touching the cursor.
type SyncService struct {
	creds     *CredentialService
	messages  *MessageService
	logs      *LogService
	connector Connector

	mu      sync.Mutex
	running atomic.Bool
}

// NewSyncService creates a new SyncService instance
func NewSyncService(creds *CredentialService, messages *MessageService, logs *LogService, connector Connector) *SyncService {
	return &SyncService{
		creds:     creds,
		messages:  messages,
		logs:      logs,
		connector: connector,
	}
}

// Running reports whether a cycle is currently in flight
func (s *SyncService) Running() bool {
	return s.running.Load()
}

// RunCycle executes one full synchronization cycle. It returns
// ErrCycleInProgress when a cycle is already running, ErrNotAuthorized when
// no usable credential exists, and the listing error when change detection
// failed; in all abort cases the stored cursor is left untouched.
func (s *SyncService) RunCycle(ctx context.Context) (*SyncReport, error) {
	if !s.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.mu.Unlock()

	s.running.Store(true)
	defer s.running.Store(false)

	report := &SyncReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	mailbox, blobs, err := s.connector.Connect(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			log.Printf("[SyncService] Cycle %s aborted: %v", report.RunID, err)
			s.logs.LogWarn(report.RunID, models.LogModuleSync, "abort_no_credential", "No usable credential, cycle skipped", nil)
			report.FinishedAt = time.Now()
			return report, err
		}
		return report, fmt.Errorf("connect remote: %w", err)
	}

	// Finish attachment work for messages stored in an earlier cycle that
	// crashed or failed mid-pipeline, before taking on new listing results
	s.recoverIncomplete(ctx, mailbox, blobs, report)

	cursor, err := s.creds.Cursor()
	if err != nil {
		return report, fmt.Errorf("read cursor: %w", err)
	}

	ids, newCursor, fallback, err := s.listChanges(ctx, mailbox, cursor, report.RunID)
	if err != nil {
		// Fatal for the cycle: the cursor stays put so the same range is
		// retried next time rather than silently skipped
		log.Printf("[SyncService] Cycle %s listing failed: %v", report.RunID, err)
		s.logs.LogError(report.RunID, models.LogModuleSync, "abort_fatal_list", "Change listing failed, cursor unchanged", map[string]interface{}{
			"error": err.Error(),
		})
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("list changes: %w", err)
	}

	report.Fallback = fallback
	report.Listed = len(ids)

	// Strictly in listed order; each id isolated from its siblings
	for _, id := range ids {
		s.processOne(ctx, mailbox, blobs, id, report)
	}

	// Commit the frontier even when every item failed: failures are a
	// property of local processing, not of the remote change stream, and
	// rewinding would reprocess permanently failing items forever. Fallback
	// mode established no frontier and commits nothing.
	if newCursor != "" && (cursor == nil || *cursor != newCursor) {
		if err := s.creds.SetCursor(newCursor); err != nil {
			report.FinishedAt = time.Now()
			return report, fmt.Errorf("commit cursor: %w", err)
		}
	}
	if newCursor != "" {
		report.Cursor = &newCursor
	} else {
		report.Cursor = cursor
	}

	report.FinishedAt = time.Now()

	log.Printf("[SyncService] Cycle %s done: listed=%d stored=%d duplicates=%d failed=%d attachments=%d fallback=%v",
		report.RunID, report.Listed, report.Stored, report.Duplicates, report.Failed, report.Attachments, report.Fallback)
	s.logs.LogInfo(report.RunID, models.LogModuleSync, "cycle_done", "Sync cycle completed", map[string]interface{}{
		"listed":      report.Listed,
		"stored":      report.Stored,
		"duplicates":  report.Duplicates,
		"failed":      report.Failed,
		"attachments": report.Attachments,
		"fallback":    report.Fallback,
	})

	return report, nil
}

// listChanges returns the new message ids and frontier cursor. With a
// usable stored cursor it queries the remote change stream; without one,
// or when the remote rejects the cursor as expired, it falls back to a
// bounded recency listing that establishes no frontier.
func (s *SyncService) listChanges(ctx context.Context, mailbox Mailbox, cursor *string, runID string) (ids []string, newCursor string, fallback bool, err error) {
	if cursor != nil && *cursor != "" {
		ids, newCursor, err = mailbox.ListHistory(ctx, *cursor)
		if err == nil {
			return ids, newCursor, false, nil
		}
		if !errors.Is(err, ErrCursorExpired) {
			return ids, newCursor, false, err
		}
		log.Printf("[SyncService] Cursor %s expired on the remote, falling back to recency listing", *cursor)
		s.logs.LogWarn(runID, models.LogModuleSync, "cursor_expired", "Stored cursor expired on the remote, recency fallback this cycle", map[string]interface{}{
			"cursor": *cursor,
		})
	}

	var pageToken string
	for page := 0; page < fallbackMaxPages; page++ {
		pageIDs, next, err := mailbox.ListRecent(ctx, pageToken, fallbackPageSize)
		if err != nil {
			return nil, "", true, err
		}
		ids = append(ids, pageIDs...)
		if next == "" {
			return ids, "", true, nil
		}
		pageToken = next
	}

	log.Printf("[SyncService] Fallback listing hit the %d-page cap; older messages deferred", fallbackMaxPages)
	s.logs.LogWarn(runID, models.LogModuleSync, "fallback_cap", "Fallback listing page cap reached, older messages not fetched this cycle", map[string]interface{}{
		"max_pages": fallbackMaxPages,
		"page_size": fallbackPageSize,
	})
	return ids, "", true, nil
}

// processOne fetches, parses, stores and attaches a single message. Every
// failure is absorbed here so siblings in the batch are unaffected.
func (s *SyncService) processOne(ctx context.Context, mailbox Mailbox, blobs BlobStore, id string, report *SyncReport) {
	remote, err := mailbox.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRemoteNotFound) {
			// Vanished between listing and fetching; nothing to archive
			s.logs.LogDebug(report.RunID, models.LogModuleSync, "fetch_gone", "Message vanished before fetch", map[string]interface{}{"source_id": id})
			return
		}
		report.Failed++
		log.Printf("[SyncService] Fetch failed for %s: %v", id, err)
		s.logs.LogWarn(report.RunID, models.LogModuleSync, "fetch_failed", "Message fetch failed", map[string]interface{}{
			"source_id": id,
			"error":     err.Error(),
		})
		return
	}

	msg := ParseMessage(remote)
	if err := s.messages.SaveMessage(msg); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			// Expected on re-listing; no attachment work for stored messages
			report.Duplicates++
			s.logs.LogDebug(report.RunID, models.LogModuleSync, "duplicate", "Message already archived", map[string]interface{}{"source_id": id})
			return
		}
		report.Failed++
		log.Printf("[SyncService] Save failed for %s: %v", id, err)
		s.logs.LogWarn(report.RunID, models.LogModuleSync, "save_failed", "Message save failed", map[string]interface{}{
			"source_id": id,
			"error":     err.Error(),
		})
		return
	}
	report.Stored++

	failed := s.processAttachments(ctx, mailbox, blobs, msg, remote.Payload, report)
	if failed == 0 {
		if err := s.messages.MarkAttachmentsComplete(msg.ID); err != nil {
			log.Printf("[SyncService] Mark attachments complete failed for %s: %v", id, err)
		}
	}
}

// attachmentPart is one qualifying candidate discovered in the part tree
type attachmentPart struct {
	ref      string
	filename string
	mimeType string
}

// discoverAttachments recursively walks the part tree. A part qualifies
// iff it declares a filename and carries a remote-retrievable reference;
// inline content needs no transfer and never qualifies. Parts that declare
// a filename but lack a MIME type or reference are malformed and skipped.
func (s *SyncService) discoverAttachments(part *RemotePart, runID string, sourceID string) []attachmentPart {
	if part == nil {
		return nil
	}

	var found []attachmentPart
	if part.Filename != "" {
		switch {
		case part.AttachmentRef == "" && len(part.Data) > 0:
			// Inline content, nothing to fetch
		case part.AttachmentRef == "" || part.MimeType == "":
			log.Printf("[SyncService] Skipping malformed part %q of %s", part.Filename, sourceID)
			s.logs.LogWarn(runID, models.LogModuleAttachment, "malformed_part", "Attachment part missing MIME type or reference", map[string]interface{}{
				"source_id": sourceID,
				"filename":  part.Filename,
			})
		default:
			found = append(found, attachmentPart{
				ref:      part.AttachmentRef,
				filename: part.Filename,
				mimeType: part.MimeType,
			})
		}
	}

	for _, child := range part.Parts {
		found = append(found, s.discoverAttachments(child, runID, sourceID)...)
	}
	return found
}

// processAttachments transfers every discovered attachment of a stored
// message to blob storage and records the external reference. Each part is
// independent: a failed transfer is logged and skipped, leaving no partial
// record, and never blocks sibling parts. The returned count holds the
// transfer failures, i.e. parts worth retrying in a later cycle.
func (s *SyncService) processAttachments(ctx context.Context, mailbox Mailbox, blobs BlobStore, msg *models.Message, payload *RemotePart, report *SyncReport) (failed int) {
	for _, part := range s.discoverAttachments(payload, report.RunID, msg.SourceID) {
		done, err := s.messages.HasAttachment(msg.ID, part.ref)
		if err != nil {
			failed++
			continue
		}
		if done {
			continue
		}

		data, err := mailbox.GetAttachment(ctx, msg.SourceID, part.ref)
		if err != nil {
			failed++
			log.Printf("[SyncService] Attachment download failed for %s/%s: %v", msg.SourceID, part.filename, err)
			s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "download_failed", "Attachment download failed", map[string]interface{}{
				"source_id": msg.SourceID,
				"filename":  part.filename,
				"error":     err.Error(),
			})
			continue
		}
		if len(data) == 0 {
			s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "empty_download", "Attachment download yielded no data, part skipped", map[string]interface{}{
				"source_id": msg.SourceID,
				"filename":  part.filename,
			})
			continue
		}

		externalID, locator, err := blobs.Upload(ctx, part.filename, part.mimeType, data)
		if err != nil {
			failed++
			log.Printf("[SyncService] Attachment upload failed for %s/%s: %v", msg.SourceID, part.filename, err)
			s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "upload_failed", "Attachment upload failed", map[string]interface{}{
				"source_id": msg.SourceID,
				"filename":  part.filename,
				"error":     err.Error(),
			})
			continue
		}
		if externalID == "" && locator == "" {
			failed++
			s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "upload_no_ref", "Upload returned neither identifier nor locator, part skipped", map[string]interface{}{
				"source_id": msg.SourceID,
				"filename":  part.filename,
			})
			continue
		}

		att := &models.Attachment{
			MessageID:   msg.ID,
			PartRef:     part.ref,
			Filename:    part.filename,
			MimeType:    part.mimeType,
			Size:        int64(len(data)),
			ExternalID:  externalID,
			ExternalURL: locator,
		}
		if err := s.messages.AddAttachment(att); err != nil {
			failed++
			s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "record_failed", "Attachment record save failed", map[string]interface{}{
				"source_id": msg.SourceID,
				"filename":  part.filename,
				"error":     err.Error(),
			})
			continue
		}
		report.Attachments++
	}
	return failed
}

// recoverIncomplete re-runs the attachment pipeline for messages stored in
// a previous cycle whose attachments never finished transferring. A message
// that vanished from the remote is marked complete: its attachments are
// unrecoverable and retrying forever helps nobody.
func (s *SyncService) recoverIncomplete(ctx context.Context, mailbox Mailbox, blobs BlobStore, report *SyncReport) {
	incomplete, err := s.messages.ListIncomplete(incompleteRetryBatch)
	if err != nil {
		log.Printf("[SyncService] Listing incomplete messages failed: %v", err)
		return
	}

	for i := range incomplete {
		msg := &incomplete[i]
		remote, err := mailbox.GetMessage(ctx, msg.SourceID)
		if err != nil {
			if errors.Is(err, ErrRemoteNotFound) {
				s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "recover_gone", "Message gone from remote, pending attachments unrecoverable", map[string]interface{}{
					"source_id": msg.SourceID,
				})
				if err := s.messages.MarkAttachmentsComplete(msg.ID); err != nil {
					log.Printf("[SyncService] Mark attachments complete failed for %s: %v", msg.SourceID, err)
				}
				continue
			}
			s.logs.LogWarn(report.RunID, models.LogModuleAttachment, "recover_fetch_failed", "Re-fetch for attachment recovery failed", map[string]interface{}{
				"source_id": msg.SourceID,
				"error":     err.Error(),
			})
			continue
		}

		if failed := s.processAttachments(ctx, mailbox, blobs, msg, remote.Payload, report); failed == 0 {
			if err := s.messages.MarkAttachmentsComplete(msg.ID); err != nil {
				log.Printf("[SyncService] Mark attachments complete failed for %s: %v", msg.SourceID, err)
			}
		}
	}
}
