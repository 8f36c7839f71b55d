package apply

import (
	"context"
	"fmt"
	"net/http"

	"careers-relay/internal/models"
)

// RelayUpload posts the application to the mail relay endpoint.
type RelayUpload struct {
	URL    string
	Client *http.Client
}

func (t *RelayUpload) Submit(ctx context.Context, fields models.ApplicationFields, file *models.Attachment) error {
	fw := newFormWriter()
	fw.application(fields)
	fw.file("attachment", file)
	body, contentType, err := fw.finish()
	if err != nil {
		return fmt.Errorf("build relay request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client().Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	return nil
}

func (t *RelayUpload) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}
