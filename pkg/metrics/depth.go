package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
)

// StatsSource reports per-queue job counts.
type StatsSource interface {
	GetQueueStats(ctx context.Context) ([]storage.QueueStats, error)
}

// DepthCollector exports queue depth read from storage on every scrape.
type DepthCollector struct {
	source  StatsSource
	timeout time.Duration
	desc    *prometheus.Desc
	errors  prometheus.Counter
}

var _ prometheus.Collector = (*DepthCollector)(nil)

// NewDepthCollector returns a collector for src. Register it with a
// prometheus.Registerer.
func NewDepthCollector(src StatsSource) *DepthCollector {
	return &DepthCollector{
		source:  src,
		timeout: 5 * time.Second,
		desc: prometheus.NewDesc(
			"deferred_queue_jobs",
			"Jobs in storage by queue and status.",
			[]string{"queue", "status"}, nil),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deferred_queue_stats_errors_total",
			Help: "Failed reads of queue statistics.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *DepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
	c.errors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *DepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source.GetQueueStats(ctx)
	if err != nil {
		c.errors.Inc()
	}
	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.Pending), s.Name, string(core.StatusPending))
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.Running), s.Name, string(core.StatusRunning))
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.Completed), s.Name, string(core.StatusCompleted))
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.Failed), s.Name, string(core.StatusFailed))
	}
	c.errors.Collect(ch)
}

// Watch counts CallDeferred events emitted on q until ctx is cancelled.
// ready, if non-nil, is closed once the subscription is active.
func (c *Collector) Watch(ctx context.Context, q *queue.Queue, ready chan<- struct{}) {
	events := q.Events()
	defer q.Unsubscribe(events)
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if ev, ok := e.(*core.CallDeferred); ok {
				c.Deferred.WithLabelValues(ev.Target, ev.Method).Inc()
			}
		}
	}
}
