package apply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"careers-relay/internal/config"
	"careers-relay/internal/models"

	"go.uber.org/zap"
)

// Transport delivers a validated application. file is nil when none was selected.
type Transport interface {
	Submit(ctx context.Context, fields models.ApplicationFields, file *models.Attachment) error
}

// TransportError is a non-success HTTP answer from the submission endpoint.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("submission failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("submission failed with status %d: %s", e.StatusCode, e.Message)
}

// NewTransport builds the transport named by cfg.Transport.
func NewTransport(cfg *config.ClientConfig, log *zap.Logger) (Transport, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Transport {
	case config.TransportRelay:
		return &RelayUpload{URL: cfg.RelayURL, Client: client}, nil
	case config.TransportForms:
		return NewFormsAPI(cfg.FormsEndpoint, cfg.FormsSubject, client), nil
	case config.TransportNative:
		return NewNativeCapture(cfg.SiteURL, cfg.FormName, cfg.SuccessTarget, client, log), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// formWriter accumulates a multipart/form-data body.
type formWriter struct {
	buf bytes.Buffer
	mw  *multipart.Writer
	err error
}

func newFormWriter() *formWriter {
	fw := &formWriter{}
	fw.mw = multipart.NewWriter(&fw.buf)
	return fw
}

func (fw *formWriter) field(name, value string) {
	if fw.err == nil {
		fw.err = fw.mw.WriteField(name, value)
	}
}

func (fw *formWriter) application(fields models.ApplicationFields) {
	fw.field("name", fields.Name)
	fw.field("email", fields.Email)
	fw.field("phone", fields.Phone)
	fw.field("position", fields.Position)
	fw.field("experience", fields.Experience)
}

func (fw *formWriter) file(name string, file *models.Attachment) {
	if fw.err != nil || file == nil {
		return
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(name), escapeQuotes(file.Filename)))
	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := fw.mw.CreatePart(h)
	if err != nil {
		fw.err = err
		return
	}
	_, fw.err = part.Write(file.Content)
}

// finish closes the body and returns it with its content type.
func (fw *formWriter) finish() (*bytes.Buffer, string, error) {
	if fw.err != nil {
		return nil, "", fw.err
	}
	if err := fw.mw.Close(); err != nil {
		return nil, "", err
	}
	return &fw.buf, fw.mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// responseError reads an error answer, preferring a JSON "message" or "error" field.
func responseError(resp *http.Response) *TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			msg = parsed.Message
		case parsed.Error != "":
			msg = parsed.Error
		}
	}
	return &TransportError{StatusCode: resp.StatusCode, Message: msg}
}
