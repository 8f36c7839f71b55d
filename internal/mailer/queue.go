package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"careers-relay/internal/models"
	natsclient "careers-relay/internal/nats"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type publisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Queue hands emails to the JetStream work queue; a worker delivers them later.
type Queue struct {
	js      publisher
	subject string
	log     *zap.Logger
	now     func() time.Time
}

func NewQueue(js nats.JetStreamContext, log *zap.Logger) *Queue {
	return &Queue{js: js, subject: natsclient.ApplicationToSend, log: log.Named("queue"), now: time.Now}
}

// Send publishes one EmailJob. The submission id doubles as the JetStream message id
// so a retried publish of the same submission is deduplicated.
func (q *Queue) Send(ctx context.Context, email *models.OutboundEmail) (err error) {
	if err = checkEmail(email); err != nil {
		return err
	}

	id := SubmissionID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	span, ctx := tracer.StartSpanFromContext(ctx, "applications.enqueue", tracer.ResourceName(q.subject))
	defer func() { span.Finish(tracer.WithError(err)) }()

	job := models.EmailJob{
		ID:           id,
		Email:        *email,
		EnqueuedAt:   q.now().UTC(),
		TraceContext: map[string]string{},
	}
	if err := tracer.Inject(span.Context(), tracer.TextMapCarrier(job.TraceContext)); err != nil {
		q.log.Debug("trace context not injected", zap.Error(err))
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}
	msg := &nats.Msg{
		Subject: q.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(nats.MsgIdHdr, id)

	ack, err := q.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish job to NATS: %w", err)
	}
	q.log.Info("application queued",
		zap.String("submission_id", id),
		zap.Uint64("seq", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}
