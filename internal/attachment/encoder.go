package attachment

import (
	"encoding/base64"
	"strings"

	"careers-relay/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

// EncodeBytes returns the standard base64 form used by the mail provider APIs.
func EncodeBytes(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// EncodeString encodes a raw binary string byte for byte.
func EncodeString(binary string) string {
	return EncodeBytes([]byte(binary))
}

// Build turns an uploaded file into an email attachment. It returns false when there
// is nothing to attach (no bytes or no filename); callers then send the email without it.
func Build(filename, contentType string, raw []byte) (models.EmailAttachment, bool) {
	filename = strings.TrimSpace(filename)
	if len(raw) == 0 || filename == "" {
		return models.EmailAttachment{}, false
	}
	if strings.TrimSpace(contentType) == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(raw).String()
	}
	return models.EmailAttachment{
		Filename:    filename,
		ContentType: contentType,
		Content:     EncodeBytes(raw),
	}, true
}
