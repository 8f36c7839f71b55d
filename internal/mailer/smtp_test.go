package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"careers-relay/internal/config"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type received struct {
	from string
	to   []string
	data []byte
	tls  bool
}

type testBackend struct {
	mu       sync.Mutex
	messages []received
	username string
	password string
}

func (b *testBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &testSession{backend: b, conn: c}, nil
}

func (b *testBackend) last() received {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messages[len(b.messages)-1]
}

func (b *testBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

type testSession struct {
	backend       *testBackend
	conn          *smtp.Conn
	authenticated bool
	msg           received
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username == s.backend.username && password == s.backend.password {
			s.authenticated = true
			return nil
		}
		return errors.New("invalid credentials")
	}), nil
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.username != "" && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.msg.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = data
	_, s.msg.tls = s.conn.TLSConnectionState()
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.msg)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset()        { s.msg = received{} }
func (s *testSession) Logout() error { return nil }

func startSMTP(t *testing.T, backend *testBackend) string {
	t.Helper()
	return serveSMTP(t, backend, nil)
}

// serveSMTP advertises STARTTLS when tlsConfig is set.
func serveSMTP(t *testing.T, backend *testBackend, tlsConfig *tls.Config) string {
	t.Helper()
	srv := smtp.NewServer(backend)
	srv.TLSConfig = tlsConfig
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return l.Addr().String()
}

func TestSMTPSend(t *testing.T) {
	backend := &testBackend{username: "relay", password: "hunter2"}
	addr := startSMTP(t, backend)

	s := NewSMTP(config.MailConfig{SMTPAddr: addr, SMTPUsername: "relay", SMTPPassword: "hunter2", SMTPSecurity: config.SMTPPlain}, zap.NewNop())
	require.NoError(t, s.Send(context.Background(), testEmail()))

	got := backend.last()
	assert.Equal(t, "no-reply@example.com", got.from)
	assert.Equal(t, []string{"hiring@example.com"}, got.to)
	assert.False(t, got.tls)

	mr, err := mail.CreateReader(bytes.NewReader(got.data))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Job Application: Seasonal Helper — Jane", subject)
	replyTo, err := mr.Header.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "jane@example.com", replyTo[0].Address)

	var html string
	var attachment []byte
	var filename string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			html = string(body)
		case *mail.AttachmentHeader:
			filename, _ = h.Filename()
			attachment = body
		}
	}
	assert.Equal(t, "<h2>New Job Application</h2>", html)
	assert.Equal(t, "resume.pdf", filename)
	assert.Equal(t, []byte("%PDF-1.4 resume"), attachment)
}

func TestSMTPSendRejectedCredentials(t *testing.T) {
	addr := startSMTP(t, &testBackend{username: "relay", password: "hunter2"})

	s := NewSMTP(config.MailConfig{SMTPAddr: addr, SMTPUsername: "relay", SMTPPassword: "wrong", SMTPSecurity: config.SMTPPlain}, zap.NewNop())
	assert.Error(t, s.Send(context.Background(), testEmail()))
}

func TestSMTPSendHonoursCancelledContext(t *testing.T) {
	s := NewSMTP(config.MailConfig{SMTPAddr: "127.0.0.1:1"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, testEmail()), context.Canceled)
}

// selfSignedTLS borrows the httptest certificate, which is valid for 127.0.0.1.
func selfSignedTLS(t *testing.T) (server *tls.Config, client *tls.Config) {
	t.Helper()
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)
	pool := x509.NewCertPool()
	pool.AddCert(ts.Certificate())
	return &tls.Config{Certificates: ts.TLS.Certificates}, &tls.Config{RootCAs: pool}
}

func TestSMTPSendUpgradesWithStartTLS(t *testing.T) {
	serverTLS, clientTLS := selfSignedTLS(t)
	backend := &testBackend{username: "relay", password: "hunter2"}
	addr := serveSMTP(t, backend, serverTLS)

	s := NewSMTP(config.MailConfig{SMTPAddr: addr, SMTPUsername: "relay", SMTPPassword: "hunter2", Timeout: 5 * time.Second}, zap.NewNop())
	s.tlsConfig = clientTLS
	require.NoError(t, s.Send(context.Background(), testEmail()))

	got := backend.last()
	assert.True(t, got.tls)
	assert.Equal(t, []string{"hiring@example.com"}, got.to)
	mr, err := mail.CreateReader(bytes.NewReader(got.data))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Job Application: Seasonal Helper — Jane", subject)
}

func TestSMTPSendRejectsUntrustedCertificate(t *testing.T) {
	serverTLS, _ := selfSignedTLS(t)
	backend := &testBackend{}
	addr := serveSMTP(t, backend, serverTLS)

	s := NewSMTP(config.MailConfig{SMTPAddr: addr, Timeout: 5 * time.Second}, zap.NewNop())
	assert.Error(t, s.Send(context.Background(), testEmail()))
	assert.Zero(t, backend.count())
}

func TestSMTPSendRequiresStartTLSByDefault(t *testing.T) {
	backend := &testBackend{}
	addr := startSMTP(t, backend)

	s := NewSMTP(config.MailConfig{SMTPAddr: addr, Timeout: 5 * time.Second}, zap.NewNop())
	assert.ErrorContains(t, s.Send(context.Background(), testEmail()), "STARTTLS")
	assert.Zero(t, backend.count())
}

func TestSMTPSendTimesOutOnSilentServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	accepted := make(chan net.Conn, 8)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			// Never greet.
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		for {
			select {
			case conn := <-accepted:
				_ = conn.Close()
			default:
				return
			}
		}
	})

	s := NewSMTP(config.MailConfig{SMTPAddr: l.Addr().String(), SMTPSecurity: config.SMTPPlain, Timeout: 200 * time.Millisecond}, zap.NewNop())
	started := time.Now()
	err = s.Send(context.Background(), testEmail())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestBuildMessageRejectsBadAttachment(t *testing.T) {
	email := testEmail()
	email.Attachments[0].Content = "not base64!"
	_, err := buildMessage(email, time.Now())
	assert.Error(t, err)
}

func TestSanitizeHeader(t *testing.T) {
	assert.Equal(t, "Job Application: X Bcc: evil@example.com", sanitizeHeader(" Job Application: X\r\n Bcc: evil@example.com"))
}
