package core

import (
	"context"
	"time"
)

// Starter is a long-running process such as a worker.
type Starter interface {
	Start(ctx context.Context) error
}

// Enqueuer persists new jobs. EnqueueUnique fails with ErrDuplicateJob
// while a pending or running job holds the same key.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
	EnqueueUnique(ctx context.Context, job *Job, uniqueKey string) error
}

// Locker is the worker side: claim a due job, keep its lock alive and
// record the outcome. Every call after Dequeue fails with ErrJobNotOwned
// once workerID no longer holds the lock.
type Locker interface {
	Dequeue(ctx context.Context, queues []string, workerID string) (*Job, error)
	Heartbeat(ctx context.Context, jobID string, workerID string) error
	Complete(ctx context.Context, jobID string, workerID string) error
	// Fail reschedules the job at retryAt, or fails it for good when nil.
	Fail(ctx context.Context, jobID string, workerID string, errMsg string, retryAt *time.Time) error
	ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error)
}

// Reader looks jobs up without locking them. GetJob returns (nil, nil)
// for an unknown ID.
type Reader interface {
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetDueJobs(ctx context.Context, queues []string, limit int) ([]*Job, error)
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)
	GetJobsByType(ctx context.Context, jobType string, status JobStatus, limit int) ([]*Job, error)
}

// Storage is everything a queue and its workers need from persistence.
type Storage interface {
	Migrate(ctx context.Context) error
	Enqueuer
	Locker
	Reader
}
