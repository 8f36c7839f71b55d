package models

import "time"

// EmailAttachment carries a file in the transport encoding expected by the mail providers.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	// Content is base64 (standard encoding).
	Content string `json:"content"`
}

// OutboundEmail is the message the relay builds for every submission.
// From and To always come from configuration.
type OutboundEmail struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	HTMLBody    string            `json:"html_body"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// EmailJob represents a queued outbound email travelling through NATS.
type EmailJob struct {
	ID         string        `json:"id"`
	Email      OutboundEmail `json:"email"`
	EnqueuedAt time.Time     `json:"enqueued_at"`

	// Datadog trace context of the relay request that queued the job.
	TraceContext map[string]string `json:"trace_context,omitempty"`
}
