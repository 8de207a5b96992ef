package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "unknown_method", Outcome(fmt.Errorf("%w: Report#Publish", core.ErrUnknownMethod)))
	assert.Equal(t, "disallowed_type", Outcome(core.ErrDisallowedType))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestCollector_ObservesCaptureAndPerform(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveCapture("Report", "Generate", time.Millisecond, nil)
	c.ObserveCapture("Report", "Generate", time.Millisecond, nil)
	c.ObserveCapture("", "Generate", time.Millisecond, core.ErrUnknownTarget)
	c.ObservePerform("Report", "Generate", 5*time.Millisecond, errors.New("db down"))
	c.ObservePerform("", "", time.Millisecond, core.ErrMalformedRecord)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Captures.WithLabelValues("Report", "Generate", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Captures.WithLabelValues("unknown", "Generate", "unknown_target")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Performs.WithLabelValues("Report", "Generate", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Performs.WithLabelValues("unknown", "unknown", "malformed_record")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.CaptureDuration))
}

func TestCollector_Instrument(t *testing.T) {
	c := New(prometheus.NewRegistry())
	q := queue.New(nil)
	c.Instrument(q)

	job := &core.Job{Queue: "reports", Type: "DelayedClass"}
	ctx := context.Background()
	q.CallStartHooks(ctx, job)
	q.CallCompleteHooks(ctx, job)
	q.CallStartHooks(ctx, job)
	q.CallRetryHooks(ctx, job, 1, errors.New("x"))
	q.CallFailHooks(ctx, job, errors.New("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Jobs.WithLabelValues("reports", "DelayedClass", "started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("reports", "DelayedClass", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("reports", "DelayedClass", "retried")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("reports", "DelayedClass", "failed")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.ObserveCapture("Report", "Generate", time.Millisecond, nil)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `deferred_captures_total{method="Generate",outcome="ok",target="Report"} 1`))
}

type fakeStats struct {
	stats []storage.QueueStats
	err   error
}

func (f fakeStats) GetQueueStats(context.Context) ([]storage.QueueStats, error) {
	return f.stats, f.err
}

func TestDepthCollector(t *testing.T) {
	c := NewDepthCollector(fakeStats{stats: []storage.QueueStats{
		{Name: "mail", Pending: 4, Running: 1, Completed: 3},
	}})

	expected := `
# HELP deferred_queue_jobs Jobs in storage by queue and status.
# TYPE deferred_queue_jobs gauge
deferred_queue_jobs{queue="mail",status="completed"} 3
deferred_queue_jobs{queue="mail",status="failed"} 0
deferred_queue_jobs{queue="mail",status="pending"} 4
deferred_queue_jobs{queue="mail",status="running"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "deferred_queue_jobs"))
}

func TestDepthCollector_CountsErrors(t *testing.T) {
	c := NewDepthCollector(fakeStats{err: errors.New("db down")})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	_, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors))
}

func TestCollector_WatchCountsDeferredCalls(t *testing.T) {
	c := New(prometheus.NewRegistry())
	q := queue.New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go c.Watch(ctx, q, ready)
	<-ready

	q.Emit(&core.CallDeferred{JobID: "j1", Target: "Report", Method: "Generate", Timestamp: time.Now()})
	q.Emit(&core.JobStarted{Job: &core.Job{}, Timestamp: time.Now()})
	q.Emit(&core.CallDeferred{JobID: "j2", Target: "Report", Method: "Generate", Timestamp: time.Now()})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(c.Deferred.WithLabelValues("Report", "Generate")) == 2
	}, time.Second, 5*time.Millisecond)
}
