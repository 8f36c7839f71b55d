package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"careers-relay/internal/mailer"
	"careers-relay/internal/metrics"
	"careers-relay/internal/models"
	natsclient "careers-relay/internal/nats"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	defaultRetryAfter = 5 * time.Second
	summaryInterval   = 30 * time.Second
)

type Options struct {
	MaxRetries    int
	RatePerSecond float64
	FetchWait     time.Duration
}

type fetcher interface {
	Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error)
}

type ackable interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
}

// Worker drains queued application emails into a direct mail sender.
type Worker struct {
	js      nats.JetStreamContext
	sub     fetcher
	sender  mailer.Sender
	limiter *rate.Limiter
	opts    Options
	log     *zap.Logger
	metrics *metrics.Worker

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	processedCount atomic.Uint64
	throttledCount atomic.Uint64
	failedCount    atomic.Uint64
}

func New(js nats.JetStreamContext, sender mailer.Sender, opts Options, m *metrics.Worker, log *zap.Logger) (*Worker, error) {
	sub, err := js.PullSubscribe(natsclient.ApplicationToSend, natsclient.ConsumerName)
	if err != nil {
		return nil, err
	}
	w := newWorker(sender, opts, m, log)
	w.js = js
	w.sub = sub
	return w, nil
}

func newWorker(sender mailer.Sender, opts Options, m *metrics.Worker, log *zap.Logger) *Worker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.FetchWait <= 0 {
		opts.FetchWait = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Worker{
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		log:     log.Named("worker"),
		metrics: m,
		sleep:   sleepCtx,
	}
}

// Run fetches and processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started, waiting for application jobs",
		zap.Int("max_retries", w.opts.MaxRetries),
		zap.Float64("rate_per_second", w.opts.RatePerSecond),
	)
	go w.logSummary(ctx)

	for {
		if ctx.Err() != nil {
			w.log.Info("worker stopped")
			return nil
		}
		msgs, err := w.sub.Fetch(1, nats.MaxWait(w.opts.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Error("error fetching message", zap.Error(err))
			if err := w.sleep(ctx, 2*time.Second); err != nil {
				return nil
			}
			continue
		}
		for _, msg := range msgs {
			w.handle(ctx, msg.Data, msg)
		}
	}
}

func (w *Worker) logSummary(ctx context.Context) {
	ticker := time.NewTicker(summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fields := []zap.Field{
			zap.Uint64("processed", w.processedCount.Load()),
			zap.Uint64("throttled", w.throttledCount.Load()),
			zap.Uint64("failed", w.failedCount.Load()),
		}
		streamInfo, sErr := w.js.StreamInfo(natsclient.StreamName)
		consumerInfo, cErr := w.js.ConsumerInfo(natsclient.StreamName, natsclient.ConsumerName)
		if sErr == nil && cErr == nil {
			fields = append(fields,
				zap.Uint64("stream_msgs", streamInfo.State.Msgs),
				zap.Uint64("pending", consumerInfo.NumPending),
			)
		} else {
			fields = append(fields, zap.String("queue", "could not retrieve NATS stream/consumer info"))
		}
		w.log.Info("worker summary", fields...)
	}
}

func (w *Worker) handle(ctx context.Context, data []byte, msg ackable) {
	var job models.EmailJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error("could not unmarshal message, discarding", zap.Error(err))
		w.count(metrics.JobDiscarded)
		_ = msg.Ack()
		return
	}

	opts := []tracer.StartSpanOption{tracer.ResourceName(natsclient.ApplicationToSend)}
	if parent, err := tracer.Extract(tracer.TextMapCarrier(job.TraceContext)); err == nil {
		opts = append(opts, tracer.ChildOf(parent))
	}
	span, ctx := tracer.StartSpanFromContext(ctx, "applications.deliver", opts...)
	span.SetTag("submission.id", job.ID)
	defer span.Finish()

	log := w.log.With(zap.String("submission_id", job.ID), zap.Strings("to", job.Email.To))
	log.Info("processing application email")

retry:
	for attempt := 0; attempt < w.opts.MaxRetries; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			log.Warn("worker stopping mid-job, releasing", zap.Error(err))
			_ = msg.Nak()
			return
		}

		started := time.Now()
		err := w.sender.Send(ctx, &job.Email)
		if w.metrics != nil {
			w.metrics.SendSeconds.Observe(time.Since(started).Seconds())
		}
		if err == nil {
			w.processedCount.Add(1)
			w.count(metrics.JobSent)
			if w.metrics != nil && !job.EnqueuedAt.IsZero() {
				w.metrics.QueueAge.Observe(time.Since(job.EnqueuedAt).Seconds())
			}
			log.Info("application email sent", zap.Int("attempt", attempt+1))
			_ = msg.Ack()
			return
		}

		var statusErr *mailer.StatusError
		switch {
		case errors.As(err, &statusErr) && statusErr.Throttled():
			w.throttledCount.Add(1)
			w.count(metrics.JobThrottled)
			wait := statusErr.RetryAfter
			if wait <= 0 {
				wait = defaultRetryAfter
			}
			log.Warn("throttled by provider", zap.Int("attempt", attempt+1), zap.Duration("retry_after", wait))
			if w.sleep(ctx, wait) != nil {
				_ = msg.Nak()
				return
			}
		case errors.As(err, &statusErr) && !statusErr.Temporary():
			log.Error("provider rejected email", zap.Int("attempt", attempt+1), zap.Error(err))
			break retry
		default:
			w.count(metrics.JobRetried)
			log.Error("error sending email", zap.Int("attempt", attempt+1), zap.Error(err))
			if w.sleep(ctx, time.Duration(2+attempt)*time.Second) != nil {
				_ = msg.Nak()
				return
			}
		}
	}

	w.failedCount.Add(1)
	w.count(metrics.JobFailed)
	span.SetTag("error", true)
	log.Error("all retries failed, releasing job")
	_ = msg.Nak()
}

func (w *Worker) count(outcome string) {
	if w.metrics != nil {
		w.metrics.Jobs.WithLabelValues(outcome).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
