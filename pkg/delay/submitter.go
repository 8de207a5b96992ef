package delay

import (
	"context"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
)

// Submitter hands a captured call to a job queue and returns the job id.
type Submitter interface {
	Submit(ctx context.Context, jobType string, payload []string, opts Options) (string, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, jobType string, payload []string, opts Options) (string, error)

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, jobType string, payload []string, opts Options) (string, error) {
	return f(ctx, jobType, payload, opts)
}

// emitter is implemented by submitters that publish queue events.
type emitter interface {
	Emit(core.Event)
}

// QueueSubmitter submits calls to a local queue.Queue.
type QueueSubmitter struct {
	q *queue.Queue
}

// NewQueueSubmitter returns a Submitter backed by q.
func NewQueueSubmitter(q *queue.Queue) *QueueSubmitter {
	return &QueueSubmitter{q: q}
}

// Submit enqueues the payload under jobType.
func (s *QueueSubmitter) Submit(ctx context.Context, jobType string, payload []string, opts Options) (string, error) {
	var qopts []queue.Option
	if at := opts.RunAt(); at != nil {
		qopts = append(qopts, queue.At(*at))
	}
	if opts.Queue != "" {
		qopts = append(qopts, queue.QueueOpt(opts.Queue))
	}
	if opts.Priority != 0 {
		qopts = append(qopts, queue.Priority(opts.Priority))
	}
	if opts.Retries != nil {
		qopts = append(qopts, queue.Retries(*opts.Retries))
	}
	if opts.UniqueKey != "" {
		qopts = append(qopts, queue.Unique(opts.UniqueKey))
	}
	return s.q.Enqueue(ctx, jobType, payload, qopts...)
}

// Emit publishes e to the queue's event subscribers.
func (s *QueueSubmitter) Emit(e core.Event) {
	s.q.Emit(e)
}
