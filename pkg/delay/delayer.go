package delay

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/schedule"
)

// JobType is the job type deferred calls are enqueued under. Sidekiq
// clients know it as Sidekiq::DelayExtensions::DelayedClass.
const JobType = "DelayedClass"

const tracerName = "github.com/jdziat/simple-deferred-calls/pkg/delay"

// settings are shared by a Delayer and the Job it replays with.
type settings struct {
	jobType  string
	allow    codec.AllowList
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time
}

func newSettings(opts []DelayerOption) settings {
	s := settings{
		jobType:  JobType,
		allow:    codec.DefaultAllowList(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt.applyDelayer(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s
}

// DelayerOption configures a Delayer or a Job.
type DelayerOption interface {
	applyDelayer(*settings)
}

type delayerOptionFunc func(*settings)

func (f delayerOptionFunc) applyDelayer(s *settings) { f(s) }

// WithJobType overrides JobType.
func WithJobType(name string) DelayerOption {
	return delayerOptionFunc(func(s *settings) {
		s.jobType = name
	})
}

// WithAllowList restricts the value kinds that may be captured or replayed.
func WithAllowList(a codec.AllowList) DelayerOption {
	return delayerOptionFunc(func(s *settings) {
		s.allow = a
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DelayerOption {
	return delayerOptionFunc(func(s *settings) {
		s.logger = l
	})
}

// WithTracerProvider sets the provider capture and perform spans come from.
func WithTracerProvider(tp trace.TracerProvider) DelayerOption {
	return delayerOptionFunc(func(s *settings) {
		s.tracer = tp.Tracer(tracerName)
	})
}

// WithObserver reports capture and replay outcomes to o.
func WithObserver(o Observer) DelayerOption {
	return delayerOptionFunc(func(s *settings) {
		if o != nil {
			s.observer = o
		}
	})
}

// WithClock replaces time.Now for computing relative schedules.
func WithClock(now func() time.Time) DelayerOption {
	return delayerOptionFunc(func(s *settings) {
		s.now = now
	})
}

// Delayer builds proxies that capture one method call each and submit it
// as a job.
type Delayer struct {
	registry  *Registry
	submitter Submitter
	encoder   *codec.Encoder
	settings  settings
}

// New returns a Delayer that resolves targets in reg and submits through sub.
func New(reg *Registry, sub Submitter, opts ...DelayerOption) *Delayer {
	s := newSettings(opts)
	return &Delayer{
		registry:  reg,
		submitter: sub,
		encoder:   codec.NewEncoder(s.allow),
		settings:  s,
	}
}

// Registry returns the registry targets are resolved in.
func (d *Delayer) Registry() *Registry {
	return d.registry
}

// Job returns a Job that replays calls captured by d.
func (d *Delayer) Job() *Job {
	return newJob(d.registry, d.settings)
}

// Delay returns a proxy for a call that runs as soon as a worker picks it up,
// or at the time set with the At option.
//
//	id, err := d.Delay(reports).Call(ctx, "Generate", 2024)
func (d *Delayer) Delay(target any, opts ...Option) *Proxy {
	return d.proxy(target, nil, opts)
}

// DelayFor returns a proxy for a call that runs interval from now.
func (d *Delayer) DelayFor(target any, interval time.Duration, opts ...Option) *Proxy {
	at := UnixSeconds(d.settings.now().Add(interval))
	return d.proxy(target, &at, opts)
}

// DelayUntil returns a proxy for a call that runs at t.
func (d *Delayer) DelayUntil(target any, t time.Time, opts ...Option) *Proxy {
	at := UnixSeconds(t)
	return d.proxy(target, &at, opts)
}

// DelayNext returns a proxy for a call that runs at the next activation of
// sched.
func (d *Delayer) DelayNext(target any, sched schedule.Schedule, opts ...Option) *Proxy {
	at := UnixSeconds(sched.Next(d.settings.now()))
	return d.proxy(target, &at, opts)
}

func (d *Delayer) proxy(target any, at *float64, opts []Option) *Proxy {
	var o Options
	for _, opt := range opts {
		opt.Apply(&o)
	}
	if at != nil {
		o.At = at
	}
	return &Proxy{delayer: d, target: target, opts: o}
}
