package services

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRemoteNotFound indicates the remote item vanished between listing
	// and fetching. It is a non-fatal outcome: the caller skips the item.
	ErrRemoteNotFound = errors.New("remote item not found")
	// ErrCursorExpired indicates the remote no longer accepts the stored
	// change cursor. The cycle falls back to the recency listing instead of
	// aborting; the cursor itself is left in place.
	ErrCursorExpired = errors.New("change cursor expired")
)

// RemotePart is one node of a message's MIME part tree as reported by the
// remote mailbox. Data holds inline content already decoded; AttachmentRef
// is set when the part's bytes require a secondary fetch.
type RemotePart struct {
	PartID        string
	Filename      string
	MimeType      string
	Data          []byte
	AttachmentRef string
	Parts         []*RemotePart
}

// RemoteMessage is the full structured content of one remote message.
// Header names are lowercase.
type RemoteMessage struct {
	SourceID   string
	ThreadID   string
	OccurredAt time.Time
	Headers    map[string]string
	Payload    *RemotePart
}

// Mailbox is the remote change stream and message source.
type Mailbox interface {
	// ListHistory returns the identifiers of messages added since cursor,
	// in the order the remote reports them, plus the new frontier cursor.
	ListHistory(ctx context.Context, cursor string) (ids []string, newCursor string, err error)
	// ListRecent pages through a recency-ordered listing of existing messages.
	ListRecent(ctx context.Context, pageToken string, pageSize int64) (ids []string, nextPageToken string, err error)
	// GetMessage fetches one message in full. Returns ErrRemoteNotFound when
	// the message no longer exists.
	GetMessage(ctx context.Context, id string) (*RemoteMessage, error)
	// GetAttachment fetches the raw bytes of one attachment part.
	GetAttachment(ctx context.Context, messageID, ref string) ([]byte, error)
}

// BlobStore is the durable destination for attachment bytes.
type BlobStore interface {
	Upload(ctx context.Context, filename, mimeType string, data []byte) (externalID, locator string, err error)
}

// Connector builds live remote handles from the stored credential.
// Connect fails with ErrNotAuthorized when no usable credential exists.
type Connector interface {
	Connect(ctx context.Context) (Mailbox, BlobStore, error)
}
