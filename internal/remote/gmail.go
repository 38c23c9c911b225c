package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maheshchichkoti/email-archiver/internal/services"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// GmailMailbox adapts the Gmail REST API to the Mailbox interface. The
// engine's opaque cursor is the Gmail history ID; it is parsed only here,
// at the adapter boundary.
type GmailMailbox struct {
	svc *gmail.Service
}

// NewGmailMailbox creates a Gmail-backed mailbox over an authenticated,
// timeout-bounded HTTP client
func NewGmailMailbox(ctx context.Context, client *http.Client) (*GmailMailbox, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}
	return &GmailMailbox{svc: svc}, nil
}

// ListHistory returns the ids of messages added since cursor and the new
// frontier reported by Gmail. The frontier may advance even when no
// messages were added; it is returned verbatim either way.
func (m *GmailMailbox) ListHistory(ctx context.Context, cursor string) ([]string, string, error) {
	start, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid history cursor %q: %w", cursor, err)
	}

	var ids []string
	seen := make(map[string]bool)
	var frontier uint64
	pageToken := ""

	for {
		call := m.svc.Users.History.List(gmailUser).
			StartHistoryId(start).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			// Gmail keeps history for roughly a week; a 404 here means the
			// stored cursor fell off the retention window
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
				return nil, "", fmt.Errorf("%w: history id %s", services.ErrCursorExpired, cursor)
			}
			return nil, "", fmt.Errorf("list history since %s: %w", cursor, err)
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}

		if resp.HistoryId > frontier {
			frontier = resp.HistoryId
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if frontier == 0 {
		// Gmail reported nothing newer; the stored cursor stays the frontier
		return ids, cursor, nil
	}
	return ids, strconv.FormatUint(frontier, 10), nil
}

// ListRecent pages through the mailbox's recency-ordered message listing
func (m *GmailMailbox) ListRecent(ctx context.Context, pageToken string, pageSize int64) ([]string, string, error) {
	call := m.svc.Users.Messages.List(gmailUser).MaxResults(pageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("list recent messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, resp.NextPageToken, nil
}

// GetMessage fetches one message in full format and maps it onto the
// engine's part tree
func (m *GmailMailbox) GetMessage(ctx context.Context, id string) (*services.RemoteMessage, error) {
	msg, err := m.svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, services.ErrRemoteNotFound
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}

	remote := &services.RemoteMessage{
		SourceID:   msg.Id,
		ThreadID:   msg.ThreadId,
		OccurredAt: time.UnixMilli(msg.InternalDate),
		Headers:    make(map[string]string),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			name := strings.ToLower(h.Name)
			if _, ok := remote.Headers[name]; !ok {
				remote.Headers[name] = h.Value
			}
		}
		remote.Payload = convertPart(msg.Payload)
	}
	return remote, nil
}

// GetAttachment fetches the raw bytes of one attachment part
func (m *GmailMailbox) GetAttachment(ctx context.Context, messageID, ref string) ([]byte, error) {
	body, err := m.svc.Users.Messages.Attachments.Get(gmailUser, messageID, ref).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, services.ErrRemoteNotFound
		}
		return nil, fmt.Errorf("get attachment %s of %s: %w", ref, messageID, err)
	}
	return decodeWebSafe(body.Data), nil
}

// convertPart recursively maps a Gmail part tree onto the engine's
func convertPart(part *gmail.MessagePart) *services.RemotePart {
	converted := &services.RemotePart{
		PartID:   part.PartId,
		Filename: part.Filename,
		MimeType: part.MimeType,
	}
	if part.Body != nil {
		converted.AttachmentRef = part.Body.AttachmentId
		converted.Data = decodeWebSafe(part.Body.Data)
	}
	for _, child := range part.Parts {
		converted.Parts = append(converted.Parts, convertPart(child))
	}
	return converted
}

// decodeWebSafe decodes Gmail's URL-safe base64, padded or not
func decodeWebSafe(data string) []byte {
	if data == "" {
		return nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded
	}
	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil
	}
	return decoded
}
