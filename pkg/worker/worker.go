package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	intctx "github.com/jdziat/simple-deferred-calls/pkg/internal/context"
	"github.com/jdziat/simple-deferred-calls/pkg/internal/handler"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// Worker processes jobs from the queue.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval: 100 * time.Millisecond,
		WorkerID:     uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.Queues == nil {
		config.Queues = map[string]int{"default": 10}
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.DequeueRetry == nil {
		// Longer backoff for dequeue to avoid hammering the DB during outages
		dequeueCfg := RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		}
		config.DequeueRetry = &dequeueCfg
	}
	if config.JobBackoff == nil {
		jobCfg := DefaultJobBackoff()
		config.JobBackoff = &jobCfg
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
	}
}

// ID returns the identifier the worker locks jobs with.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start begins processing jobs. Blocks until context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	queues := make([]string, 0, len(w.config.Queues))
	totalConcurrency := 0
	for name, c := range w.config.Queues {
		queues = append(queues, name)
		totalConcurrency += c
	}

	w.logger.Info("worker started", "queues", queues, "concurrency", totalConcurrency)

	jobsChan := make(chan *core.Job, totalConcurrency)

	if w.config.ReapInterval > 0 {
		go w.runReaper(ctx)
	}

	for i := 0; i < totalConcurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, jobsChan)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(jobsChan)
			w.wg.Wait()
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			job, err := w.dequeueWithRetry(ctx, queues)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					w.logger.Error("failed to dequeue after retries", "error", err)
				}
				continue
			}
			if job != nil {
				select {
				case jobsChan <- job:
				case <-ctx.Done():
				}
			}
		}
	}
}

// dequeueWithRetry attempts to dequeue a job with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context, queues []string) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.DequeueRetry, func() error {
		var dequeueErr error
		job, dequeueErr = w.queue.Storage().Dequeue(ctx, queues, w.config.WorkerID)
		return dequeueErr
	})
	return job, err
}

func (w *Worker) processLoop(ctx context.Context, jobs <-chan *core.Job) {
	defer w.wg.Done()

	for job := range jobs {
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	startTime := time.Now()
	logger := w.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempt)

	h, ok := w.queue.GetHandler(job.Type)
	if !ok {
		logger.Error("no handler for job")
		w.failWithRetry(ctx, job.ID, fmt.Sprintf("no handler for %s", job.Type), nil)
		return
	}

	w.queue.CallStartHooks(ctx, job)
	w.queue.Emit(&core.JobStarted{Job: job, Timestamp: startTime})

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()

	// Extend the lock during long-running jobs
	go w.runHeartbeat(heartbeatCtx, job)

	err := w.executeHandler(ctx, job, h, logger)

	cancelHeartbeat()

	if err != nil {
		w.handleError(ctx, job, err, logger)
		return
	}

	if err := w.completeWithRetry(ctx, job.ID); err != nil {
		logger.Error("failed to complete job after retries", "error", err)
		return
	}
	logger.Debug("job completed", "duration", time.Since(startTime))
	w.queue.CallCompleteHooks(ctx, job)
	w.queue.Emit(&core.JobCompleted{Job: job, Duration: time.Since(startTime), Timestamp: time.Now()})
}

// completeWithRetry marks a job complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Complete(ctx, jobID, w.config.WorkerID)
	})
}

// runHeartbeat periodically extends the job lock during execution.
func (w *Worker) runHeartbeat(ctx context.Context, job *core.Job) {
	// Well inside the 5 minute lock window
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
				return w.queue.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID)
			})
			if err != nil {
				w.logger.Warn("heartbeat failed after retries", "job_id", job.ID, "error", err)
			} else {
				w.logger.Debug("heartbeat sent", "job_id", job.ID)
			}
		}
	}
}

func (w *Worker) executeHandler(ctx context.Context, job *core.Job, h *handler.Handler, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	jobCtx := intctx.WithJobContext(ctx, &intctx.JobContext{
		Job:      job,
		WorkerID: w.config.WorkerID,
		Logger:   logger,
	})

	return h.Execute(jobCtx, job.Args)
}

func (w *Worker) handleError(ctx context.Context, job *core.Job, err error, logger *slog.Logger) {
	msg := security.SanitizeErrorMessage(err.Error())

	if core.Permanent(err) {
		w.fail(ctx, job, msg, err, logger)
		return
	}

	if job.Attempt < job.MaxRetries {
		retryAt := time.Now().Add(w.config.JobBackoff.Delay(job.Attempt + 1))

		var retryAfter *core.RetryAfterError
		if errors.As(err, &retryAfter) {
			retryAt = time.Now().Add(retryAfter.Delay)
		}

		logger.Warn("job failed, retrying", "error", err, "retry_at", retryAt)
		w.failWithRetry(ctx, job.ID, msg, &retryAt)
		w.queue.CallRetryHooks(ctx, job, job.Attempt, err)
		w.queue.Emit(&core.JobRetrying{Job: job, Attempt: job.Attempt, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
		return
	}

	w.fail(ctx, job, msg, err, logger)
}

func (w *Worker) fail(ctx context.Context, job *core.Job, msg string, err error, logger *slog.Logger) {
	logger.Error("job failed", "error", err)
	w.failWithRetry(ctx, job.ID, msg, nil)
	w.queue.CallFailHooks(ctx, job, err)
	w.queue.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
}

// failWithRetry marks a job as failed with retry on transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, jobID string, errMsg string, retryAt *time.Time) {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Fail(ctx, jobID, w.config.WorkerID, errMsg, retryAt)
	})
	if err != nil {
		w.logger.Error("failed to mark job as failed after retries", "job_id", jobID, "error", err)
	}
}

// runReaper releases locks held by workers that stopped sending heartbeats.
func (w *Worker) runReaper(ctx context.Context) {
	ticker := time.NewTicker(w.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.Storage().ReleaseStaleLocks(ctx, w.config.StaleAfter)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Error("failed to release stale locks", "error", err)
				}
				continue
			}
			if n > 0 {
				w.logger.Warn("released stale job locks", "count", n)
			}
		}
	}
}
