package apply

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"careers-relay/internal/models"
)

// FormsAPI posts to a forms-as-a-service endpoint that emails the submission.
type FormsAPI struct {
	Endpoint string
	Subject  string
	Client   *http.Client
	now      func() time.Time
}

func NewFormsAPI(endpoint, subject string, client *http.Client) *FormsAPI {
	return &FormsAPI{Endpoint: endpoint, Subject: subject, Client: client, now: time.Now}
}

func (t *FormsAPI) Submit(ctx context.Context, fields models.ApplicationFields, file *models.Attachment) error {
	fw := newFormWriter()
	fw.application(fields)
	// Provider honeypot; a real applicant never fills it.
	fw.field("_gotcha", "")
	fw.field("_subject", t.Subject)
	fw.field("_captcha", "false")
	fw.field("_template", "table")
	fw.field("submitted_at_cst", FormatCST(t.clock()))
	fw.file("attachment", file)
	body, contentType, err := fw.finish()
	if err != nil {
		return fmt.Errorf("build forms request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("forms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	return nil
}

func (t *FormsAPI) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}
