// Package metrics exports Prometheus metrics for deferred calls and the
// queue that runs them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
)

// Collector records capture, replay and job lifecycle metrics. It
// implements delay.Observer.
type Collector struct {
	Captures        *prometheus.CounterVec
	CaptureDuration *prometheus.HistogramVec
	Performs        *prometheus.CounterVec
	PerformDuration *prometheus.HistogramVec
	Jobs            *prometheus.CounterVec
	Deferred        *prometheus.CounterVec
}

var _ delay.Observer = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		Captures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deferred_captures_total",
			Help: "Method calls captured for deferred execution, by outcome.",
		}, []string{"target", "method", "outcome"}),
		CaptureDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deferred_capture_duration_seconds",
			Help:    "Time to serialize and submit a captured call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		Performs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deferred_performs_total",
			Help: "Deferred calls replayed on a worker, by outcome.",
		}, []string{"target", "method", "outcome"}),
		PerformDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deferred_perform_duration_seconds",
			Help:    "Time to decode and run a deferred call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deferred_jobs_total",
			Help: "Queue job lifecycle transitions.",
		}, []string{"queue", "type", "event"}),
		Deferred: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deferred_calls_enqueued_total",
			Help: "CallDeferred events seen on a watched queue.",
		}, []string{"target", "method"}),
	}
}

// ObserveCapture implements delay.Observer.
func (c *Collector) ObserveCapture(target, method string, elapsed time.Duration, err error) {
	target = orUnknown(target)
	c.Captures.WithLabelValues(target, method, Outcome(err)).Inc()
	c.CaptureDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// ObservePerform implements delay.Observer.
func (c *Collector) ObservePerform(target, method string, elapsed time.Duration, err error) {
	target = orUnknown(target)
	c.Performs.WithLabelValues(target, orUnknown(method), Outcome(err)).Inc()
	c.PerformDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// Instrument counts job starts, completions, retries and failures on q.
func (c *Collector) Instrument(q *queue.Queue) {
	q.OnJobStart(func(_ context.Context, j *core.Job) {
		c.Jobs.WithLabelValues(j.Queue, j.Type, "started").Inc()
	})
	q.OnJobComplete(func(_ context.Context, j *core.Job) {
		c.Jobs.WithLabelValues(j.Queue, j.Type, "completed").Inc()
	})
	q.OnRetry(func(_ context.Context, j *core.Job, _ int, _ error) {
		c.Jobs.WithLabelValues(j.Queue, j.Type, "retried").Inc()
	})
	q.OnJobFail(func(_ context.Context, j *core.Job, _ error) {
		c.Jobs.WithLabelValues(j.Queue, j.Type, "failed").Inc()
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var outcomes = []struct {
	err  error
	name string
}{
	{core.ErrUnknownTarget, "unknown_target"},
	{core.ErrUnknownMethod, "unknown_method"},
	{core.ErrDisallowedType, "disallowed_type"},
	{core.ErrUnsupportedType, "unsupported_type"},
	{core.ErrMalformedRecord, "malformed_record"},
	{core.ErrArgumentMismatch, "argument_mismatch"},
	{core.ErrProxyConsumed, "proxy_consumed"},
	{core.ErrNotInstalled, "not_installed"},
	{core.ErrJobArgsTooLarge, "too_large"},
	{core.ErrDuplicateJob, "duplicate"},
}

// Outcome maps err to a low-cardinality label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, o := range outcomes {
		if errors.Is(err, o.err) {
			return o.name
		}
	}
	return "error"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
