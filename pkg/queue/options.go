package queue

import (
	"time"

	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// DefaultJobRetries is the retry budget for jobs enqueued without Retries.
var DefaultJobRetries = 2

// Options controls where and when an enqueued job runs. Timeout is only
// read at registration.
type Options struct {
	Queue      string
	Priority   int
	MaxRetries int
	Delay      time.Duration
	RunAt      *time.Time
	UniqueKey  string
	Timeout    time.Duration
}

// NewOptions returns the enqueue defaults.
func NewOptions() *Options {
	return &Options{
		Queue:      "default",
		MaxRetries: DefaultJobRetries,
	}
}

func buildOptions(opts []Option) *Options {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}
	return o
}

// validate checks the names that end up in storage.
func (o *Options) validate() error {
	if err := security.ValidateQueueName(o.Queue); err != nil {
		return err
	}
	if o.UniqueKey != "" {
		return security.ValidateUniqueKey(o.UniqueKey)
	}
	return nil
}

// scheduledAt resolves Delay and RunAt; an absolute time wins. Nil means
// run as soon as a worker is free.
func (o *Options) scheduledAt(now time.Time) *time.Time {
	if o.RunAt != nil {
		at := *o.RunAt
		return &at
	}
	if o.Delay > 0 {
		at := now.Add(o.Delay)
		return &at
	}
	return nil
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// QueueOpt routes the job to a named queue.
func QueueOpt(name string) Option {
	return optionFunc(func(o *Options) { o.Queue = name })
}

// Priority orders due jobs within a queue; higher runs first.
func Priority(p int) Option {
	return optionFunc(func(o *Options) { o.Priority = p })
}

// Retries sets how many attempts a failing job gets, clamped to
// [0, security.MaxRetries].
func Retries(n int) Option {
	return optionFunc(func(o *Options) { o.MaxRetries = security.ClampRetries(n) })
}

// Delay holds the job back for d.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) { o.Delay = d })
}

// At holds the job back until t.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) { o.RunAt = &t })
}

// Unique rejects the enqueue with core.ErrDuplicateJob while another job
// with the same key is pending or running.
func Unique(key string) Option {
	return optionFunc(func(o *Options) { o.UniqueKey = key })
}

// Timeout bounds a single handler execution.
func Timeout(d time.Duration) Option {
	return optionFunc(func(o *Options) { o.Timeout = d })
}
