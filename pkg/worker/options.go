package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Queues       map[string]int // queue name -> concurrency
	PollInterval time.Duration
	WorkerID     string
	Logger       *slog.Logger

	// Stale lock reaping; disabled when ReapInterval is zero.
	ReapInterval time.Duration
	StaleAfter   time.Duration

	StorageRetry *RetryConfig
	DequeueRetry *RetryConfig

	// JobBackoff spaces retries of a failed call; MaxAttempts is unused
	// because the job's own retry budget applies.
	JobBackoff *RetryConfig
}

// Concurrency sets the concurrency for every configured queue.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		clamped := security.ClampConcurrency(n)
		for k := range c.Queues {
			c.Queues[k] = clamped
		}
	})
}

// WorkerQueue adds a queue to process with optional concurrency.
func WorkerQueue(name string, opts ...WorkerOption) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Queues == nil {
			c.Queues = make(map[string]int)
		}
		c.Queues[name] = 10 // default concurrency
		for _, opt := range opts {
			opt.ApplyWorker(c)
		}
	})
}

// PollInterval sets how often the worker polls storage for due jobs.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WorkerID overrides the generated worker identifier used for job locks.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithStaleLockReaper periodically releases locks of running jobs whose
// worker has not sent a heartbeat for staleAfter.
func WithStaleLockReaper(interval, staleAfter time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ReapInterval = interval
		c.StaleAfter = staleAfter
	})
}

// WithStorageRetry sets the retry policy for complete/fail/heartbeat calls.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithDequeueRetry sets the retry policy for dequeue calls.
func WithDequeueRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DequeueRetry = &cfg
	})
}

// WithJobBackoff sets how far apart retries of a failed call are scheduled.
func WithJobBackoff(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.JobBackoff = &cfg
	})
}

// WithRetryAttempts sets the storage retry attempts, keeping default backoff.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = n
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes every storage call a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		single := DefaultRetryConfig()
		single.MaxAttempts = 1
		dequeue := single
		c.StorageRetry = &single
		c.DequeueRetry = &dequeue
	})
}
