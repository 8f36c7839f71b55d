package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"careers-relay/internal/config"
	"careers-relay/internal/models"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTP submits through a mail server, authenticating with PLAIN when a username is set.
// The connection is secured with STARTTLS unless configured for implicit TLS or none.
type SMTP struct {
	addr     string
	username string
	password string
	security string
	timeout  time.Duration
	log      *zap.Logger

	// tlsConfig overrides the default verification settings; used in tests.
	tlsConfig *tls.Config
}

func NewSMTP(cfg config.MailConfig, log *zap.Logger) *SMTP {
	security := cfg.SMTPSecurity
	if security == "" {
		security = config.SMTPStartTLS
	}
	return &SMTP{
		addr:     cfg.SMTPAddr,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		security: security,
		timeout:  cfg.Timeout,
		log:      log.Named("smtp"),
	}
}

func (s *SMTP) Send(ctx context.Context, email *models.OutboundEmail) error {
	if err := checkEmail(email); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := buildMessage(email, time.Now())
	if err != nil {
		return err
	}

	to := make([]string, 0, len(email.To))
	for _, rcpt := range email.To {
		to = append(to, bareAddress(rcpt))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.submit(ctx, bareAddress(email.From), to, raw); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send via %s: %w", s.addr, ctxErr)
		}
		return fmt.Errorf("smtp send via %s: %w", s.addr, err)
	}
	s.log.Debug("email submitted", zap.String("addr", s.addr), zap.String("security", s.security), zap.Int("bytes", len(raw)))
	return nil
}

func (s *SMTP) submit(ctx context.Context, from string, to []string, raw []byte) error {
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	// Closing the connection unblocks whatever command is pending when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := s.newClient(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if s.timeout > 0 {
		c.CommandTimeout = s.timeout
		c.SubmissionTimeout = s.timeout
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return err
		}
	}
	if err := c.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		return err
	}
	return c.Quit()
}

func (s *SMTP) newClient(conn net.Conn) (*smtp.Client, error) {
	host, _, _ := net.SplitHostPort(s.addr)
	tlsConfig := &tls.Config{ServerName: host}
	if s.tlsConfig != nil {
		tlsConfig = s.tlsConfig.Clone()
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = host
		}
	}

	switch s.security {
	case config.SMTPPlain:
		return smtp.NewClient(conn), nil
	case config.SMTPImplicitTLS:
		return smtp.NewClient(tls.Client(conn, tlsConfig)), nil
	default:
		return smtp.NewClientStartTLS(conn, tlsConfig)
	}
}

// buildMessage renders the email as a MIME message with the HTML body inline and
// every attachment decoded from base64.
func buildMessage(email *models.OutboundEmail, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(sanitizeHeader(email.Subject))

	from, err := parseAddressList([]string{email.From})
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	h.SetAddressList("From", from)
	to, err := parseAddressList(email.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	h.SetAddressList("To", to)
	if email.ReplyTo != "" {
		if replyTo, err := parseAddressList([]string{email.ReplyTo}); err == nil {
			h.SetAddressList("Reply-To", replyTo)
		}
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	var ih mail.InlineHeader
	ih.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	w, err := mw.CreateSingleInline(ih)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, email.HTMLBody); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	for _, a := range email.Attachments {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, fmt.Errorf("attachment %q is not valid base64: %w", a.Filename, err)
		}
		var ah mail.AttachmentHeader
		ah.SetFilename(a.Filename)
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ah.SetContentType(contentType, nil)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := aw.Write(content); err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseAddressList(values []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(values))
	for _, v := range values {
		addr, err := mail.ParseAddress(sanitizeHeader(v))
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func sanitizeHeader(value string) string {
	cleaned := strings.ReplaceAll(value, "\r", "")
	cleaned = strings.ReplaceAll(cleaned, "\n", "")
	return strings.TrimSpace(cleaned)
}
