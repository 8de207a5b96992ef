package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

// failJob enqueues a job ahead of everything else in queue and fails it
// permanently.
func failJob(t *testing.T, s *GormStorage, queue string) *core.Job {
	t.Helper()
	ctx := context.Background()
	j := newTestJob(queue, "DelayedClass")
	j.Priority = 100
	require.NoError(t, s.Enqueue(ctx, j))
	job, err := s.Dequeue(ctx, []string{queue}, "w")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, j.ID, job.ID)
	require.NoError(t, s.Fail(ctx, job.ID, "w", "deferred: target does not respond to method", nil))
	return job
}

func TestGetQueueStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.Enqueue(ctx, newTestJob("reports", "DelayedClass")))
	require.NoError(t, s.Enqueue(ctx, newTestJob("reports", "DelayedClass")))
	require.NoError(t, s.Enqueue(ctx, newTestJob("default", "DelayedClass")))
	failJob(t, s, "mail")

	stats, err := s.GetQueueStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	assert.Equal(t, QueueStats{Name: "default", Pending: 1}, stats[0])
	assert.Equal(t, QueueStats{Name: "mail", Failed: 1}, stats[1])
	assert.Equal(t, QueueStats{Name: "reports", Pending: 2}, stats[2])
}

func TestSearchJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	report := newTestJob("reports", "DelayedClass")
	report.Args = []byte(`["- !ruby/class Report\n- :generate\n- - 2024\n"]`)
	require.NoError(t, s.Enqueue(ctx, report))
	require.NoError(t, s.Enqueue(ctx, newTestJob("reports", "email")))
	failJob(t, s, "reports")

	jobs, total, err := s.SearchJobs(ctx, JobFilter{Type: "DelayedClass"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, jobs, 2)

	jobs, total, err = s.SearchJobs(ctx, JobFilter{Status: core.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, jobs, 1)

	jobs, _, err = s.SearchJobs(ctx, JobFilter{Search: "- - 2024"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, report.ID, jobs[0].ID)

	jobs, total, err = s.SearchJobs(ctx, JobFilter{Queue: "reports", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, jobs, 1)
}

func TestRetryJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	failed := failJob(t, s, "q")

	job, err := s.RetryJob(ctx, failed.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, core.StatusPending, job.Status)
	assert.Zero(t, job.Attempt)
	assert.Empty(t, job.LastError)
	assert.Nil(t, job.CompletedAt)

	again, err := s.Dequeue(ctx, []string{"q"}, "w2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, failed.ID, again.ID)
}

func TestRetryJob_RejectsNonFailed(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := newTestJob("q", "DelayedClass")
	require.NoError(t, s.Enqueue(ctx, job))

	_, err := s.RetryJob(ctx, job.ID)
	assert.ErrorContains(t, err, "cannot retry")

	_, err = s.RetryJob(ctx, "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestPurgeJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	failJob(t, s, "a")
	failJob(t, s, "b")
	require.NoError(t, s.Enqueue(ctx, newTestJob("a", "DelayedClass")))

	n, err := s.PurgeJobs(ctx, "a", core.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.PurgeJobs(ctx, "", core.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := s.GetJobsByStatus(ctx, core.StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
