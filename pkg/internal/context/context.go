package context

import (
	"context"
	"log/slog"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

type jobContextKey struct{}

// JobContext is what a running handler can learn about its job. Call is
// set once a deferred call has been decoded, as Target.method.
type JobContext struct {
	Job      *core.Job
	WorkerID string
	Logger   *slog.Logger
	Call     string
}

// FromContext returns the job context stored in ctx, or nil.
func FromContext(ctx context.Context) *JobContext {
	jc, _ := ctx.Value(jobContextKey{}).(*JobContext)
	return jc
}

// WithJobContext stores jc in ctx.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, jobContextKey{}, jc)
}

// WithCall annotates the job context in ctx with the call being replayed.
// The stored context is copied, never mutated; outside a job a bare
// context holding only the call is created.
func WithCall(ctx context.Context, call string) context.Context {
	var jc JobContext
	if cur := FromContext(ctx); cur != nil {
		jc = *cur
	}
	jc.Call = call
	if jc.Logger != nil {
		jc.Logger = jc.Logger.With("call", call)
	}
	return WithJobContext(ctx, &jc)
}
