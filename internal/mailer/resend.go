package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"careers-relay/internal/config"
	"careers-relay/internal/models"

	"go.uber.org/zap"
)

// Resend sends through the Resend HTTP API.
type Resend struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

type resendAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

type resendEmail struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	ReplyTo     string             `json:"reply_to,omitempty"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

func NewResend(cfg config.MailConfig, log *zap.Logger) *Resend {
	return &Resend{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log.Named("resend"),
	}
}

func (r *Resend) Send(ctx context.Context, email *models.OutboundEmail) error {
	if err := checkEmail(email); err != nil {
		return err
	}

	payload := resendEmail{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTMLBody,
		ReplyTo: email.ReplyTo,
	}
	for _, a := range email.Attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal resend payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("resend", resp)
	}

	var sent struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&sent)
	r.log.Debug("email accepted", zap.String("resend_id", sent.ID), zap.Int("attachments", len(payload.Attachments)))
	return nil
}
