// Package metrics holds the Prometheus collectors of the relay and the worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "careers"

// Submission results.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Worker job outcomes.
const (
	JobSent      = "sent"
	JobThrottled = "throttled"
	JobRetried   = "retried"
	JobFailed    = "failed"
	JobDiscarded = "discarded"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type Relay struct {
	Submissions     *prometheus.CounterVec
	AttachmentBytes prometheus.Histogram
	DispatchSeconds *prometheus.HistogramVec
	Panics          prometheus.Counter
}

func NewRelay(reg prometheus.Registerer) *Relay {
	f := promauto.With(reg)
	return &Relay{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Application submissions handled by the relay, by result.",
		}, []string{"result"}),
		AttachmentBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attachment_bytes",
			Help:      "Size of relayed resume attachments.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10),
		}),
		DispatchSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handing a submission to the mail sender.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		Panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_panics_total",
			Help:      "Panics recovered by the relay handler.",
		}),
	}
}

type Worker struct {
	Jobs        *prometheus.CounterVec
	SendSeconds prometheus.Histogram
	QueueAge    prometheus.Histogram
}

func NewWorker(reg prometheus.Registerer) *Worker {
	f := promauto.With(reg)
	return &Worker{
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Queued application emails by outcome.",
		}, []string{"outcome"}),
		SendSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_send_duration_seconds",
			Help:      "Duration of a single provider send attempt.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueAge: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_queue_age_seconds",
			Help:      "Time between enqueue and successful delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}
