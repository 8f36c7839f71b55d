package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"careers-relay/internal/mailer"
	"careers-relay/internal/metrics"
	"careers-relay/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedSender struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedSender) Send(_ context.Context, _ *models.OutboundEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.results) == 0 {
		return nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	return err
}

type fakeMsg struct {
	acks, naks int
}

func (m *fakeMsg) Ack(...nats.AckOpt) error { m.acks++; return nil }
func (m *fakeMsg) Nak(...nats.AckOpt) error { m.naks++; return nil }

func newTestWorker(sender mailer.Sender) (*Worker, *[]time.Duration, *metrics.Worker) {
	m := metrics.NewWorker(prometheus.NewRegistry())
	w := newWorker(sender, Options{MaxRetries: 3}, m, zap.NewNop())
	var waits []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return w, &waits, m
}

func jobData(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(models.EmailJob{
		ID:         "sub-1",
		Email:      models.OutboundEmail{From: "no-reply@example.com", To: []string{"hiring@example.com"}, Subject: "Job Application"},
		EnqueuedAt: time.Now(),
	})
	require.NoError(t, err)
	return data
}

func TestHandleAcksOnSuccess(t *testing.T) {
	sender := &scriptedSender{}
	w, waits, m := newTestWorker(sender)
	msg := &fakeMsg{}

	w.handle(context.Background(), jobData(t), msg)

	assert.Equal(t, 1, msg.acks)
	assert.Equal(t, 0, msg.naks)
	assert.Equal(t, 1, sender.calls)
	assert.Empty(t, *waits)
	assert.Equal(t, uint64(1), w.processedCount.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues(metrics.JobSent)))
}

func TestHandleHonoursRetryAfter(t *testing.T) {
	sender := &scriptedSender{results: []error{
		&mailer.StatusError{Provider: "resend", StatusCode: 429, RetryAfter: 9 * time.Second},
		&mailer.StatusError{Provider: "resend", StatusCode: 429},
		nil,
	}}
	w, waits, _ := newTestWorker(sender)
	msg := &fakeMsg{}

	w.handle(context.Background(), jobData(t), msg)

	assert.Equal(t, 1, msg.acks)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []time.Duration{9 * time.Second, defaultRetryAfter}, *waits)
	assert.Equal(t, uint64(2), w.throttledCount.Load())
}

func TestHandleNaksAfterRetryBudget(t *testing.T) {
	boom := errors.New("connection reset")
	sender := &scriptedSender{results: []error{boom, boom, boom, boom}}
	w, waits, _ := newTestWorker(sender)
	msg := &fakeMsg{}

	w.handle(context.Background(), jobData(t), msg)

	assert.Equal(t, 0, msg.acks)
	assert.Equal(t, 1, msg.naks)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second}, *waits)
	assert.Equal(t, uint64(1), w.failedCount.Load())
}

func TestHandleStopsOnPermanentRejection(t *testing.T) {
	sender := &scriptedSender{results: []error{&mailer.StatusError{Provider: "resend", StatusCode: 422}}}
	w, _, _ := newTestWorker(sender)
	msg := &fakeMsg{}

	w.handle(context.Background(), jobData(t), msg)

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, 1, msg.naks)
}

func TestHandleDiscardsUndecodablePayload(t *testing.T) {
	sender := &scriptedSender{}
	w, _, m := newTestWorker(sender)
	msg := &fakeMsg{}

	w.handle(context.Background(), []byte("{not json"), msg)

	assert.Equal(t, 1, msg.acks)
	assert.Equal(t, 0, sender.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues(metrics.JobDiscarded)))
}

func TestHandleReleasesJobWhenCancelled(t *testing.T) {
	sender := &scriptedSender{}
	w, _, _ := newTestWorker(sender)
	msg := &fakeMsg{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.handle(ctx, jobData(t), msg)

	assert.Equal(t, 1, msg.naks)
	assert.Equal(t, 0, sender.calls)
}

type stubFetcher struct {
	msgs   []*nats.Msg
	cancel context.CancelFunc
}

func (f *stubFetcher) Fetch(int, ...nats.PullOpt) ([]*nats.Msg, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		return nil, nats.ErrTimeout
	}
	batch := f.msgs[:1]
	f.msgs = f.msgs[1:]
	return batch, nil
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w, _, _ := newTestWorker(&scriptedSender{})
	w.sub = &stubFetcher{cancel: cancel}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
