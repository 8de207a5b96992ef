// Package jobctx provides public access to job context for handlers.
//
// Methods replayed from deferred calls can accept a context.Context as their
// first parameter and use these helpers to learn which job they run under.
package jobctx

import (
	"context"
	"log/slog"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	intctx "github.com/jdziat/simple-deferred-calls/pkg/internal/context"
)

// JobFromContext returns the current Job from context, or nil if not in a job handler.
func JobFromContext(ctx context.Context) *core.Job {
	jc := intctx.FromContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Job
}

// JobIDFromContext returns the current job ID from context, or empty string if not in a job handler.
func JobIDFromContext(ctx context.Context) string {
	job := JobFromContext(ctx)
	if job == nil {
		return ""
	}
	return job.ID
}

// WorkerIDFromContext returns the ID of the worker running the current job.
func WorkerIDFromContext(ctx context.Context) string {
	jc := intctx.FromContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.WorkerID
}

// CallFromContext returns the deferred call being replayed as
// Target.method, or empty outside a replay.
func CallFromContext(ctx context.Context) string {
	if jc := intctx.FromContext(ctx); jc != nil {
		return jc.Call
	}
	return ""
}

// Logger returns the job-scoped logger, falling back to slog.Default.
func Logger(ctx context.Context) *slog.Logger {
	jc := intctx.FromContext(ctx)
	if jc == nil || jc.Logger == nil {
		return slog.Default()
	}
	return jc.Logger
}

// WithJob returns a context carrying job, as the worker does before running a
// handler. Useful when invoking handlers directly in tests.
func WithJob(ctx context.Context, job *core.Job, workerID string) context.Context {
	return intctx.WithJobContext(ctx, &intctx.JobContext{
		Job:      job,
		WorkerID: workerID,
		Logger:   slog.Default().With("job_id", job.ID, "job_type", job.Type),
	})
}
