package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"careers-relay/internal/mailer"
	"careers-relay/internal/metrics"
	"careers-relay/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingSender struct {
	mu     sync.Mutex
	emails []*models.OutboundEmail
	ids    []string
	err    error
	panics bool
}

func (s *recordingSender) Send(ctx context.Context, email *models.OutboundEmail) error {
	if s.panics {
		panic("provider exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails = append(s.emails, email)
	s.ids = append(s.ids, mailer.SubmissionID(ctx))
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emails)
}

func newTestRouter(sender mailer.Sender, maxBody int64) (*gin.Engine, *metrics.Relay) {
	m := metrics.NewRelay(prometheus.NewRegistry())
	h := NewHandler(sender, "no-reply@example.com", []string{"hiring@example.com"}, m, zap.NewNop())
	return NewRouter(RouterDependencies{
		Handler:        h,
		Paths:          []string{"/api/submit-application", "/.netlify/functions/submit-application"},
		AllowedOrigins: []string{"https://lawnsolutions.example"},
		MaxBodyBytes:   maxBody,
		Metrics:        m,
		Log:            zap.NewNop(),
	}), m
}

type filePart struct {
	field, name, contentType string
	content                  []byte
}

func multipartBody(t *testing.T, fields map[string]string, file *filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.name+`"`)
		h.Set("Content-Type", file.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func post(router http.Handler, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitRelaysApplication(t *testing.T) {
	sender := &recordingSender{}
	router, m := newTestRouter(sender, 0)

	pdf := []byte("%PDF-1.4 resume bytes")
	body, ct := multipartBody(t, map[string]string{
		"name":       "Jane Doe",
		"email":      "jane@example.com",
		"phone":      "555-0100",
		"position":   "Crew Lead / Foreman",
		"experience": "5 years mowing",
	}, &filePart{field: "attachment", name: "resume.pdf", contentType: "application/pdf", content: pdf})

	rec := post(router, "/api/submit-application", body, ct)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	require.Equal(t, 1, sender.count())

	email := sender.emails[0]
	assert.Equal(t, "no-reply@example.com", email.From)
	assert.Equal(t, []string{"hiring@example.com"}, email.To)
	assert.Equal(t, "jane@example.com", email.ReplyTo)
	assert.Equal(t, "Job Application: Crew Lead / Foreman — Jane Doe", email.Subject)
	assert.Contains(t, email.HTMLBody, "<p><strong>Name:</strong> Jane Doe</p>")
	require.Len(t, email.Attachments, 1)
	assert.Equal(t, "resume.pdf", email.Attachments[0].Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdf), email.Attachments[0].Content)

	assert.NotEmpty(t, sender.ids[0])
	assert.Equal(t, sender.ids[0], rec.Header().Get("X-Submission-Id"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues(metrics.ResultSent)))
}

func TestSubmitAcceptsResumeFieldAndAlias(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 0)

	body, ct := multipartBody(t, map[string]string{"name": "Sam"},
		&filePart{field: "resume", name: "cv.pdf", contentType: "application/pdf", content: []byte("%PDF-1.7")})
	rec := post(router, "/.netlify/functions/submit-application", body, ct)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.emails[0].Attachments, 1)
	assert.Equal(t, "cv.pdf", sender.emails[0].Attachments[0].Filename)
}

func TestSubmitWithoutFileOrFields(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 0)

	body, ct := multipartBody(t, map[string]string{}, nil)
	rec := post(router, "/api/submit-application", body, ct)

	require.Equal(t, http.StatusOK, rec.Code)
	email := sender.emails[0]
	assert.Empty(t, email.Attachments)
	assert.Empty(t, email.ReplyTo)
	assert.Equal(t, "Job Application: Unknown Position — Unknown", email.Subject)
}

func TestSubmitSkipsEmptyFile(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 0)

	body, ct := multipartBody(t, map[string]string{"name": "Sam"},
		&filePart{field: "attachment", name: "empty.pdf", contentType: "application/pdf"})
	rec := post(router, "/api/submit-application", body, ct)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.emails[0].Attachments)
}

func TestSubmitEscapesApplicantInput(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 0)

	body, ct := multipartBody(t, map[string]string{
		"name":       `<script>alert("x")</script>`,
		"experience": `Tom & Jerry's "lawn" <b>care</b>`,
	}, nil)
	rec := post(router, "/api/submit-application", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)

	html := sender.emails[0].HTMLBody
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>care</b>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "Tom &amp; Jerry&#39;s &#34;lawn&#34; &lt;b&gt;care&lt;/b&gt;")
}

func TestSubjectStripsLineBreaks(t *testing.T) {
	subject := Subject(models.ApplicationFields{Name: "Eve\r\nBcc: all@example.com", Position: "Seasonal Helper"})
	assert.NotContains(t, subject, "\n")
	assert.NotContains(t, subject, "\r")
	assert.Equal(t, "Job Application: Seasonal Helper — EveBcc: all@example.com", subject)
}

func TestNonPostIsRejected(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 0)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/api/submit-application", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String(), method)
	}
	assert.Zero(t, sender.count())
}

func TestSendFailureIsOpaque(t *testing.T) {
	sender := &recordingSender{err: errors.New("resend: unexpected status 403: domain not verified")}
	router, m := newTestRouter(sender, 0)

	body, ct := multipartBody(t, map[string]string{"name": "Jane"}, nil)
	rec := post(router, "/api/submit-application", body, ct)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to send"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "domain")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues(metrics.ResultFailed)))
}

func TestNonMultipartBodyIsOpaque(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 0)

	rec := post(router, "/api/submit-application", bytes.NewBufferString("name=Jane"), "application/x-www-form-urlencoded")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to send"}`, rec.Body.String())
	assert.Zero(t, sender.count())
}

func TestOversizedBodyIsOpaque(t *testing.T) {
	sender := &recordingSender{}
	router, _ := newTestRouter(sender, 1024)

	body, ct := multipartBody(t, map[string]string{"name": "Jane"},
		&filePart{field: "attachment", name: "big.pdf", contentType: "application/pdf", content: bytes.Repeat([]byte("a"), 4096)})
	rec := post(router, "/api/submit-application", body, ct)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to send"}`, rec.Body.String())
	assert.Zero(t, sender.count())
}

func TestPanicIsRecovered(t *testing.T) {
	router, m := newTestRouter(&recordingSender{panics: true}, 0)

	body, ct := multipartBody(t, map[string]string{"name": "Jane"}, nil)
	rec := post(router, "/api/submit-application", body, ct)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to send"}`, rec.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Panics))
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(&recordingSender{}, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/submit-application", nil)
	req.Header.Set("Origin", "https://lawnsolutions.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://lawnsolutions.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost))
}
