package remote

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func TestDecodeWebSafe(t *testing.T) {
	payload := []byte("attachment bytes \xff\xfe")

	padded := base64.URLEncoding.EncodeToString(payload)
	assert.Equal(t, payload, decodeWebSafe(padded))

	raw := base64.RawURLEncoding.EncodeToString(payload)
	assert.Equal(t, payload, decodeWebSafe(raw))

	assert.Nil(t, decodeWebSafe(""))
	assert.Nil(t, decodeWebSafe("not base64!!"))
}

func TestConvertPartTree(t *testing.T) {
	part := &gmail.MessagePart{
		PartId:   "0",
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				PartId:   "1",
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("hello"))},
			},
			{
				PartId:   "2",
				Filename: "report.pdf",
				MimeType: "application/pdf",
				Body:     &gmail.MessagePartBody{AttachmentId: "att-ref", Size: 1024},
			},
		},
	}

	converted := convertPart(part)
	require.Len(t, converted.Parts, 2)

	body := converted.Parts[0]
	assert.Equal(t, "text/plain", body.MimeType)
	assert.Equal(t, []byte("hello"), body.Data)
	assert.Empty(t, body.AttachmentRef)

	att := converted.Parts[1]
	assert.Equal(t, "report.pdf", att.Filename)
	assert.Equal(t, "att-ref", att.AttachmentRef)
	assert.Empty(t, att.Data)
}
