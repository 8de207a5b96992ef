package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/internal/handler"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// Queue owns the handler table for one storage backend. Workers read
// handlers from it and report job lifecycle through its hooks and events.
type Queue struct {
	storage  core.Storage
	handlers map[string]*handler.Handler
	mu       sync.RWMutex

	hooks     hooks
	eventSubs []chan core.Event
}

// New creates a new Queue with the given storage backend.
func New(s core.Storage) *Queue {
	return &Queue{
		storage:  s,
		handlers: make(map[string]*handler.Handler),
	}
}

// Register registers a job handler function.
// The function must have signature: func(ctx context.Context, args T) error
// Job type names must be alphanumeric (starting with a letter), max 255 chars.
// A later registration for the same name replaces the earlier one.
func (q *Queue) Register(name string, fn any, opts ...Option) {
	h := mustHandler(name, fn, opts)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// RegisterIfAbsent registers fn unless a handler for name already exists.
// It reports whether fn was registered.
func (q *Queue) RegisterIfAbsent(name string, fn any, opts ...Option) bool {
	h := mustHandler(name, fn, opts)

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.handlers[name]; exists {
		return false
	}
	q.handlers[name] = h
	return true
}

func mustHandler(name string, fn any, opts []Option) *handler.Handler {
	if err := security.ValidateJobTypeName(name); err != nil {
		panic(fmt.Sprintf("deferred: invalid handler name %q: %v", name, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("deferred: handler for %q: %v", name, err))
	}

	if len(opts) > 0 {
		h.Timeout = buildOptions(opts).Timeout
	}
	return h
}

// HasHandler checks if a handler is registered.
func (q *Queue) HasHandler(name string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.handlers[name]
	return ok
}

// GetHandler returns a handler by name.
func (q *Queue) GetHandler(name string) (*handler.Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Enqueue adds a job to the queue.
func (q *Queue) Enqueue(ctx context.Context, name string, args any, opts ...Option) (string, error) {
	if !q.HasHandler(name) {
		return "", fmt.Errorf("deferred: no handler registered for %q", name)
	}

	options := buildOptions(opts)
	if err := options.validate(); err != nil {
		return "", err
	}

	argsBytes, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("deferred: failed to marshal args: %w", err)
	}

	if len(argsBytes) > security.MaxJobArgsSize {
		return "", core.ErrJobArgsTooLarge
	}

	job := &core.Job{
		ID:         uuid.New().String(),
		Type:       name,
		Args:       argsBytes,
		Queue:      options.Queue,
		Priority:   options.Priority,
		MaxRetries: security.ClampRetries(options.MaxRetries),
		Status:     core.StatusPending,
		RunAt:      options.scheduledAt(time.Now()),
	}

	if options.UniqueKey != "" {
		if err := q.storage.EnqueueUnique(ctx, job, options.UniqueKey); err != nil {
			if errors.Is(err, core.ErrDuplicateJob) {
				return "", err
			}
			return "", fmt.Errorf("deferred: failed to enqueue: %w", err)
		}
		return job.ID, nil
	}

	if err := q.storage.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("deferred: failed to enqueue: %w", err)
	}

	return job.ID, nil
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// WorkerFactory is set by the root package to create workers.
// This avoids import cycles between queue and worker packages.
var WorkerFactory func(q *Queue, opts ...any) core.Starter

// NewWorker creates a new worker for this queue.
// Options should be worker.WorkerOption values.
func (q *Queue) NewWorker(opts ...any) core.Starter {
	if WorkerFactory == nil {
		panic("deferred: WorkerFactory not initialized - import github.com/jdziat/simple-deferred-calls to initialize")
	}
	return WorkerFactory(q, opts...)
}
