package queue

import (
	"context"
	"slices"
	"sync"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

// EventBuffer is the capacity of each Events channel. Events are dropped
// for a subscriber whose buffer is full.
const EventBuffer = 100

type hooks struct {
	start    []func(context.Context, *core.Job)
	complete []func(context.Context, *core.Job)
	fail     []func(context.Context, *core.Job, error)
	retry    []func(context.Context, *core.Job, int, error)
}

// snapshot copies s under the read lock so callbacks run unlocked and may
// register further hooks.
func snapshot[T any](mu *sync.RWMutex, s *[]T) []T {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Clone(*s)
}

func add[T any](mu *sync.RWMutex, s *[]T, fn T) {
	mu.Lock()
	defer mu.Unlock()
	*s = append(*s, fn)
}

// OnJobStart runs fn before each handler call.
func (q *Queue) OnJobStart(fn func(context.Context, *core.Job)) {
	add(&q.mu, &q.hooks.start, fn)
}

// OnJobComplete runs fn after a handler succeeds and the job is marked done.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.Job)) {
	add(&q.mu, &q.hooks.complete, fn)
}

// OnJobFail runs fn when a job fails for good.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	add(&q.mu, &q.hooks.fail, fn)
}

// OnRetry runs fn when a failed job is rescheduled.
func (q *Queue) OnRetry(fn func(context.Context, *core.Job, int, error)) {
	add(&q.mu, &q.hooks.retry, fn)
}

func (q *Queue) CallStartHooks(ctx context.Context, job *core.Job) {
	for _, fn := range snapshot(&q.mu, &q.hooks.start) {
		fn(ctx, job)
	}
}

func (q *Queue) CallCompleteHooks(ctx context.Context, job *core.Job) {
	for _, fn := range snapshot(&q.mu, &q.hooks.complete) {
		fn(ctx, job)
	}
}

func (q *Queue) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	for _, fn := range snapshot(&q.mu, &q.hooks.fail) {
		fn(ctx, job, err)
	}
}

func (q *Queue) CallRetryHooks(ctx context.Context, job *core.Job, attempt int, err error) {
	for _, fn := range snapshot(&q.mu, &q.hooks.retry) {
		fn(ctx, job, attempt, err)
	}
}

// Events subscribes to lifecycle and CallDeferred events. Call Unsubscribe
// when done.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, EventBuffer)
	add(&q.mu, &q.eventSubs, ch)
	return ch
}

// Unsubscribe drops a channel returned by Events. The channel is not
// closed.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.eventSubs = slices.DeleteFunc(q.eventSubs, func(sub chan core.Event) bool {
		return sub == ch
	})
}

// Emit delivers e to every subscriber without blocking.
func (q *Queue) Emit(e core.Event) {
	for _, ch := range snapshot(&q.mu, &q.eventSubs) {
		select {
		case ch <- e:
		default:
		}
	}
}
