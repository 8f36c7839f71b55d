// Package mailer delivers outbound application emails through a configured provider.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"careers-relay/internal/config"
	"careers-relay/internal/models"

	"go.uber.org/zap"
)

// Sender delivers one email. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, email *models.OutboundEmail) error
}

var ErrNoRecipients = errors.New("mailer: email has no recipients")

// StatusError is a non-success answer from a provider's HTTP API.
type StatusError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Throttled reports a 429 answer.
func (e *StatusError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Temporary reports whether retrying the same request can succeed.
func (e *StatusError) Temporary() bool {
	return e.Throttled() || e.StatusCode >= 500
}

// New returns the direct Sender for the configured provider.
func New(cfg config.MailConfig, log *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case config.ProviderResend:
		return NewResend(cfg, log), nil
	case config.ProviderGraph:
		return NewGraph(cfg, log), nil
	case config.ProviderSMTP:
		return NewSMTP(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

type submissionKey struct{}

// WithSubmissionID tags ctx with the id of the submission being delivered.
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, submissionKey{}, id)
}

// SubmissionID returns the id set by WithSubmissionID.
func SubmissionID(ctx context.Context) string {
	id, _ := ctx.Value(submissionKey{}).(string)
	return id
}

func checkEmail(email *models.OutboundEmail) error {
	if email == nil || len(email.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}

func statusError(provider string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Body:       strings.TrimSpace(string(body)),
	}
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
