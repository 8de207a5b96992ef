package worker

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

// RetryConfig is an exponential backoff policy. The worker uses one for
// storage calls, one for dequeue and one for re-running failed jobs.
type RetryConfig struct {
	MaxAttempts       int // including the first call; values below 1 mean 1
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration // zero means uncapped
	BackoffMultiplier float64
	JitterFraction    float64 // 0..1, applied in both directions
}

// DefaultRetryConfig is the storage call policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// DefaultJobBackoff spaces out retries of a failed deferred call:
// 2s after the first attempt, doubling up to a minute.
func DefaultJobBackoff() RetryConfig {
	return RetryConfig{
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// Delay returns the unjittered pause after attempt n (1-based).
func (c RetryConfig) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialBackoff) * math.Pow(mult, float64(n-1))
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

func (c RetryConfig) jitter(d time.Duration) time.Duration {
	if c.JitterFraction <= 0 {
		return d
	}
	j := time.Duration(float64(d) * c.JitterFraction * (rand.Float64()*2 - 1))
	if d+j < 0 {
		return d
	}
	return d + j
}

// retryWithBackoff calls op until it succeeds, fails permanently or runs
// out of attempts, and returns the last error.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !IsRetryableError(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		timer := time.NewTimer(cfg.jitter(cfg.Delay(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRetryableError reports whether a storage error may succeed on retry.
// Cancellation, lost locks, duplicates and missing rows are permanent.
func IsRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrJobNotOwned), errors.Is(err, core.ErrDuplicateJob):
		return false
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false
	}
	return true
}
