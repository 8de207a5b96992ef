// Package deferred defers method calls on registered receivers to a
// durable job queue and replays them on a worker.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	store, _ := deferred.OpenStorage("sqlite", "jobs.db", slog.Default())
//	store.Migrate(ctx)
//	queue := deferred.New(store)
//
//	// Register receivers and install the replay handler
//	reg := deferred.NewRegistry()
//	reg.MustRegister("Report", reports)
//	deferred.Install(queue, reg)
//
//	// Capture a call; it runs on a worker an hour from now
//	deferred.DelayFor(reports, time.Hour).CallKwargs(ctx, "Generate",
//	    deferred.Kwargs{"format": "csv"}, 2024)
//
//	// Start worker
//	worker := queue.NewWorker()
//	worker.Start(ctx)
package deferred

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/jobctx"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/schedule"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
	"github.com/jdziat/simple-deferred-calls/pkg/worker"
)

func init() {
	// Register the worker factory to enable queue.NewWorker()
	queue.WorkerFactory = func(q *queue.Queue, opts ...any) core.Starter {
		workerOpts := make([]worker.WorkerOption, 0, len(opts))
		for _, opt := range opts {
			if wo, ok := opt.(worker.WorkerOption); ok {
				workerOpts = append(workerOpts, wo)
			}
		}
		return worker.NewWorker(q, workerOpts...)
	}
}

type (
	// Job represents a unit of work to be processed.
	Job = core.Job

	// JobStatus represents the current state of a job.
	JobStatus = core.JobStatus

	// Storage defines the persistence layer for jobs.
	Storage = core.Storage

	// Event is the interface for all queue events.
	Event = core.Event

	JobStarted   = core.JobStarted
	JobCompleted = core.JobCompleted
	JobFailed    = core.JobFailed
	JobRetrying  = core.JobRetrying

	// CallDeferred is emitted when a call is captured onto the queue.
	CallDeferred = core.CallDeferred

	// NoRetryError indicates an error that should not be retried.
	NoRetryError = core.NoRetryError

	// RetryAfterError indicates an error that should be retried after a delay.
	RetryAfterError = core.RetryAfterError

	// Queue manages handler registration, enqueueing, and processing.
	Queue = queue.Queue

	// QueueOption modifies queue.Options when enqueueing raw jobs.
	QueueOption = queue.Option

	// Registry maps target names to receivers.
	Registry = delay.Registry

	// Delayer captures calls and submits them.
	Delayer = delay.Delayer

	// DelayerOption configures a Delayer.
	DelayerOption = delay.DelayerOption

	// Proxy captures exactly one method call.
	Proxy = delay.Proxy

	// Kwargs holds keyword arguments of a captured call.
	Kwargs = delay.Kwargs

	// Option sets scheduling options on a captured call.
	Option = delay.Option

	// Options holds the scheduling options of a captured call.
	Options = delay.Options

	// Submitter hands serialized calls to a job system.
	Submitter = delay.Submitter

	// Observer receives capture and replay measurements.
	Observer = delay.Observer

	// Record is a serialized method call.
	Record = codec.Record

	Symbol = codec.Symbol
	Class  = codec.Class
	Date   = codec.Date

	// AllowList restricts the kinds a payload may contain.
	AllowList = codec.AllowList

	// Worker processes jobs from the queue.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// Schedule defines when a call should run next.
	Schedule = schedule.Schedule

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage
)

// JobType is the job type deferred calls are submitted under.
const JobType = delay.JobType

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
	StatusRetrying  = core.StatusRetrying
)

// Security limits
const (
	MaxJobArgsSize      = security.MaxJobArgsSize
	MaxRetries          = security.MaxRetries
	MaxConcurrency      = security.MaxConcurrency
	MaxTargetNameLength = security.MaxTargetNameLength
)

// Error variables
var (
	ErrInvalidQueueName  = core.ErrInvalidQueueName
	ErrJobArgsTooLarge   = core.ErrJobArgsTooLarge
	ErrDuplicateJob      = core.ErrDuplicateJob
	ErrUnknownTarget     = core.ErrUnknownTarget
	ErrInvalidTargetName = core.ErrInvalidTargetName
	ErrDuplicateTarget   = core.ErrDuplicateTarget
	ErrUnsupportedType   = core.ErrUnsupportedType
	ErrProxyConsumed     = core.ErrProxyConsumed
	ErrNotInstalled      = core.ErrNotInstalled
	ErrDisallowedType    = core.ErrDisallowedType
	ErrMalformedRecord   = core.ErrMalformedRecord
	ErrUnknownMethod     = core.ErrUnknownMethod
	ErrArgumentMismatch  = core.ErrArgumentMismatch
)

// New creates a new Queue with the given storage backend.
func New(s Storage) *Queue {
	return queue.New(s)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// OpenStorage connects to a sqlite or postgres database.
func OpenStorage(driver, dsn string, logger *slog.Logger) (*GormStorage, error) {
	return storage.Open(driver, dsn, logger)
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *Queue, opts ...WorkerOption) *Worker {
	return worker.NewWorker(q, opts...)
}

// NewRegistry creates an empty target registry.
func NewRegistry() *Registry {
	return delay.NewRegistry()
}

// NewDelayer creates a Delayer that submits through sub.
func NewDelayer(reg *Registry, sub Submitter, opts ...DelayerOption) *Delayer {
	return delay.New(reg, sub, opts...)
}

// NewQueueSubmitter submits captured calls to q.
func NewQueueSubmitter(q *Queue) Submitter {
	return delay.NewQueueSubmitter(q)
}

// Install registers the replay handler on q and makes the returned Delayer
// the default for Delay, DelayFor and DelayUntil.
func Install(q *Queue, reg *Registry, opts ...DelayerOption) *Delayer {
	return delay.Install(q, reg, opts...)
}

// SetDefault replaces the default Delayer. Nil uninstalls it.
func SetDefault(d *Delayer) {
	delay.SetDefault(d)
}

// Delay captures a call that runs as soon as a worker picks it up.
func Delay(target any, opts ...Option) *Proxy {
	return delay.Delay(target, opts...)
}

// DelayFor captures a call that runs after interval.
func DelayFor(target any, interval time.Duration, opts ...Option) *Proxy {
	return delay.DelayFor(target, interval, opts...)
}

// DelayUntil captures a call that runs at t.
func DelayUntil(target any, t time.Time, opts ...Option) *Proxy {
	return delay.DelayUntil(target, t, opts...)
}

// Call scheduling options.
var (
	At       = delay.At
	AtUnix   = delay.AtUnix
	OnQueue  = delay.Queue
	Priority = delay.Priority
	Retries  = delay.Retries
	Unique   = delay.Unique
)

// Delayer options.
var (
	WithJobType        = delay.WithJobType
	WithAllowList      = delay.WithAllowList
	WithLogger         = delay.WithLogger
	WithTracerProvider = delay.WithTracerProvider
	WithObserver       = delay.WithObserver
)

// Worker options.
var (
	Concurrency         = worker.Concurrency
	WorkerQueue         = worker.WorkerQueue
	PollInterval        = worker.PollInterval
	WithStaleLockReaper = worker.WithStaleLockReaper
)

// Schedules for Delayer.DelayNext.
var (
	Every  = schedule.Every
	Daily  = schedule.Daily
	Weekly = schedule.Weekly
	Cron   = schedule.Cron
)

// DefaultAllowList allows every kind the codec supports.
func DefaultAllowList() AllowList {
	return codec.DefaultAllowList()
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}

// JobFromContext returns the job a replayed method runs under, or nil.
func JobFromContext(ctx context.Context) *Job {
	return jobctx.JobFromContext(ctx)
}

// LoggerFromContext returns the job-scoped logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return jobctx.Logger(ctx)
}
