package remote

import (
	"context"
	"time"

	"github.com/maheshchichkoti/email-archiver/internal/services"
	"golang.org/x/oauth2"
)

// requestTimeout bounds every individual HTTP request against the Google
// APIs, attachment bodies included
const requestTimeout = 2 * time.Minute

// GoogleConnector builds live Gmail and Drive handles from the stored
// credential. Connect fails with the credential service's ErrNotAuthorized
// when the mailbox has not been authorized or the refresh secret cannot be
// decrypted.
type GoogleConnector struct {
	creds         *services.CredentialService
	driveFolderID string
}

// NewGoogleConnector creates a new GoogleConnector instance
func NewGoogleConnector(creds *services.CredentialService, driveFolderID string) *GoogleConnector {
	return &GoogleConnector{
		creds:         creds,
		driveFolderID: driveFolderID,
	}
}

// Connect returns live remote handles backed by an auto-refreshing,
// rotation-persisting token source
func (c *GoogleConnector) Connect(ctx context.Context) (services.Mailbox, services.BlobStore, error) {
	ts, err := c.creds.LiveTokenSource(ctx)
	if err != nil {
		return nil, nil, err
	}

	client := oauth2.NewClient(ctx, ts)
	client.Timeout = requestTimeout

	mailbox, err := NewGmailMailbox(ctx, client)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := NewDriveStore(ctx, client, c.driveFolderID)
	if err != nil {
		return nil, nil, err
	}

	return mailbox, blobs, nil
}
