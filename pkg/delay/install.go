package delay

import (
	"sync"
	"time"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
)

var (
	defaultMu      sync.RWMutex
	defaultDelayer *Delayer
)

// Install wires deferred calls into q: it registers the replay handler for
// the job type unless q already has one, and makes the returned Delayer the
// package default used by Delay, DelayFor and DelayUntil.
//
// Install may be called repeatedly. A handler that is already registered,
// whether by an earlier Install or by the host application, is left alone.
func Install(q *queue.Queue, reg *Registry, opts ...DelayerOption) *Delayer {
	d := New(reg, NewQueueSubmitter(q), opts...)
	if q.RegisterIfAbsent(d.settings.jobType, d.Job().Handle) {
		d.settings.logger.Debug("deferred call handler registered", "job_type", d.settings.jobType)
	}
	SetDefault(d)
	return d
}

// SetDefault replaces the package default Delayer. Nil uninstalls it.
func SetDefault(d *Delayer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultDelayer = d
}

// Default returns the package default Delayer, or nil before Install.
func Default() *Delayer {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultDelayer
}

// Delay calls Delay on the default Delayer. Without one, the returned
// proxy fails with core.ErrNotInstalled.
func Delay(target any, opts ...Option) *Proxy {
	if d := Default(); d != nil {
		return d.Delay(target, opts...)
	}
	return &Proxy{err: core.ErrNotInstalled}
}

// DelayFor calls DelayFor on the default Delayer.
func DelayFor(target any, interval time.Duration, opts ...Option) *Proxy {
	if d := Default(); d != nil {
		return d.DelayFor(target, interval, opts...)
	}
	return &Proxy{err: core.ErrNotInstalled}
}

// DelayUntil calls DelayUntil on the default Delayer.
func DelayUntil(target any, t time.Time, opts ...Option) *Proxy {
	if d := Default(); d != nil {
		return d.DelayUntil(target, t, opts...)
	}
	return &Proxy{err: core.ErrNotInstalled}
}
