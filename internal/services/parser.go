package services

import (
	"html"
	"strings"

	"github.com/maheshchichkoti/email-archiver/internal/database/models"
)

// ParseMessage turns the remote structured payload into an archivable
// message record. It never touches the network: envelope fields come from
// the headers, the body from the decoded text parts of the payload tree.
func ParseMessage(remote *RemoteMessage) *models.Message {
	msg := &models.Message{
		SourceID:   remote.SourceID,
		ThreadID:   remote.ThreadID,
		OccurredAt: remote.OccurredAt,
		FromAddr:   remote.Headers["from"],
		ToAddrs:    remote.Headers["to"],
		CcAddrs:    remote.Headers["cc"],
		BccAddrs:   remote.Headers["bcc"],
		Subject:    remote.Headers["subject"],
		InReplyTo:  remote.Headers["in-reply-to"],
		Refs:       remote.Headers["references"],
	}

	if contentID := strings.TrimSpace(remote.Headers["message-id"]); contentID != "" {
		msg.ContentID = &contentID
	}

	var plain, htmlBody string
	collectBodies(remote.Payload, &plain, &htmlBody)

	// Prefer the HTML rendition when both exist
	body := htmlBody
	if body == "" {
		body = plain
	}
	msg.Body = html.UnescapeString(body)

	return msg
}

// collectBodies recursively walks the part tree and picks up the first
// text/plain and text/html parts that are not attachments
func collectBodies(part *RemotePart, plain, htmlBody *string) {
	if part == nil {
		return
	}

	if part.Filename == "" && len(part.Data) > 0 {
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain") && *plain == "":
			*plain = string(part.Data)
		case strings.HasPrefix(part.MimeType, "text/html") && *htmlBody == "":
			*htmlBody = string(part.Data)
		}
	}

	for _, child := range part.Parts {
		collectBodies(child, plain, htmlBody)
	}
}
