package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DriveStore adapts Google Drive to the BlobStore interface. Each uploaded
// attachment becomes a file whose id and web link are recorded locally.
type DriveStore struct {
	svc      *drive.Service
	folderID string // optional parent folder; empty uploads to the Drive root
}

// NewDriveStore creates a Drive-backed blob store over an authenticated,
// timeout-bounded HTTP client
func NewDriveStore(ctx context.Context, client *http.Client, folderID string) (*DriveStore, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &DriveStore{svc: svc, folderID: folderID}, nil
}

// Upload stores one attachment and returns its Drive file id and link
func (s *DriveStore) Upload(ctx context.Context, filename, mimeType string, data []byte) (string, string, error) {
	file := &drive.File{Name: filename}
	if s.folderID != "" {
		file.Parents = []string{s.folderID}
	}

	created, err := s.svc.Files.Create(file).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("upload %s: %w", filename, err)
	}
	return created.Id, created.WebViewLink, nil
}
