package delay

import (
	"math"
	"time"
)

// Options are the scheduling options handed to a Submitter.
type Options struct {
	// At is an absolute Unix time in fractional seconds. Nil means the job
	// is eligible immediately.
	At *float64

	Queue     string
	Priority  int
	Retries   *int
	UniqueKey string
}

// RunAt converts At to a time. It returns nil when At is unset.
func (o Options) RunAt() *time.Time {
	if o.At == nil {
		return nil
	}
	t := fromUnixSeconds(*o.At)
	return &t
}

// Option configures Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// At schedules the call for t.
func At(t time.Time) Option {
	return AtUnix(UnixSeconds(t))
}

// AtUnix schedules the call for a Unix timestamp in fractional seconds.
func AtUnix(ts float64) Option {
	return optionFunc(func(o *Options) {
		o.At = &ts
	})
}

// Queue sets the queue the call is enqueued on.
func Queue(name string) Option {
	return optionFunc(func(o *Options) {
		o.Queue = name
	})
}

// Priority sets the job priority. Higher runs first.
func Priority(p int) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// Retries sets how many times the queue may retry the call.
func Retries(n int) Option {
	return optionFunc(func(o *Options) {
		o.Retries = &n
	})
}

// Unique rejects the call while another with the same key is pending.
func Unique(key string) Option {
	return optionFunc(func(o *Options) {
		o.UniqueKey = key
	})
}

// UnixSeconds returns t as fractional Unix seconds, the value Ruby's
// Time#to_f gives for the same instant.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// fromUnixSeconds inverts UnixSeconds to microsecond precision, which is all
// a float64 keeps for present-day timestamps.
func fromUnixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	usec := int64(math.Round(frac * 1e6))
	return time.Unix(int64(sec), usec*int64(time.Microsecond))
}
