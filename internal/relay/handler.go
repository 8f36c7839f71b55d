// Package relay implements the HTTP endpoint that turns a careers form post into an
// email to the hiring inbox.
package relay

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"careers-relay/internal/attachment"
	"careers-relay/internal/mailer"
	"careers-relay/internal/metrics"
	"careers-relay/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	failedToSend     = "Failed to send"
	methodNotAllowed = "Method not allowed"
	submissionIDKey  = "submission_id"

	// Parts above this size are spooled to disk by the multipart reader.
	multipartMemory = 8 << 20
)

// Handler relays one application per request.
type Handler struct {
	sender  mailer.Sender
	from    string
	to      []string
	metrics *metrics.Relay
	log     *zap.Logger
}

func NewHandler(sender mailer.Sender, from string, to []string, m *metrics.Relay, log *zap.Logger) *Handler {
	return &Handler{sender: sender, from: from, to: to, metrics: m, log: log.Named("relay")}
}

// Submit handles POST multipart/form-data with the application fields and an
// optional "attachment" (or "resume") file.
func (h *Handler) Submit(c *gin.Context) {
	id := uuid.NewString()
	c.Set(submissionIDKey, id)
	c.Header("X-Submission-Id", id)
	log := h.log.With(zap.String("submission_id", id))

	span, ctx := tracer.StartSpanFromContext(c.Request.Context(), "relay.submit")
	span.SetTag("submission.id", id)
	defer span.Finish()

	email, err := h.readApplication(c)
	if err != nil {
		log.Error("could not read application", zap.Error(err))
		span.SetTag("error", err)
		h.fail(c)
		return
	}

	ctx = mailer.WithSubmissionID(ctx, id)
	started := time.Now()
	err = h.sender.Send(ctx, email)
	if err != nil {
		h.observeDispatch(metrics.ResultFailed, started)
		log.Error("failed to send application", zap.Error(err))
		span.SetTag("error", err)
		h.fail(c)
		return
	}
	h.observeDispatch(metrics.ResultSent, started)
	if h.metrics != nil {
		h.metrics.Submissions.WithLabelValues(metrics.ResultSent).Inc()
	}

	log.Info("application relayed",
		zap.String("subject", email.Subject),
		zap.Int("attachments", len(email.Attachments)),
	)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MethodNotAllowed answers every non-POST request on the relay routes.
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": methodNotAllowed})
}

func (h *Handler) readApplication(c *gin.Context) (*models.OutboundEmail, error) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}

	fields := models.ApplicationFields{
		Name:       c.PostForm("name"),
		Email:      c.PostForm("email"),
		Phone:      c.PostForm("phone"),
		Position:   c.PostForm("position"),
		Experience: c.PostForm("experience"),
	}

	var attachments []models.EmailAttachment
	file, err := resumeFile(c)
	if err != nil {
		return nil, err
	}
	if file != nil {
		raw, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("read attachment %q: %w", file.Filename, err)
		}
		if a, ok := attachment.Build(file.Filename, file.Header.Get("Content-Type"), raw); ok {
			attachments = append(attachments, a)
			if h.metrics != nil {
				h.metrics.AttachmentBytes.Observe(float64(len(raw)))
			}
		}
	}

	return BuildEmail(h.from, h.to, fields, attachments)
}

// resumeFile returns the "attachment" part, else the "resume" part, else nil.
func resumeFile(c *gin.Context) (*multipart.FileHeader, error) {
	for _, key := range []string{"attachment", "resume"} {
		file, err := c.FormFile(key)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("read form file %q: %w", key, err)
		}
	}
	return nil, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) fail(c *gin.Context) {
	if h.metrics != nil {
		h.metrics.Submissions.WithLabelValues(metrics.ResultFailed).Inc()
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": failedToSend})
}

func (h *Handler) observeDispatch(result string, started time.Time) {
	if h.metrics != nil {
		h.metrics.DispatchSeconds.WithLabelValues(result).Observe(time.Since(started).Seconds())
	}
}
