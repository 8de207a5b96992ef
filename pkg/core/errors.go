package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrInvalidJobTypeName = errors.New("deferred: invalid job type name (must be alphanumeric, start with letter)")
	ErrJobTypeNameTooLong = errors.New("deferred: job type name too long")
	ErrInvalidQueueName   = errors.New("deferred: invalid queue name")
	ErrQueueNameTooLong   = errors.New("deferred: queue name too long")
	ErrJobArgsTooLarge    = errors.New("deferred: job arguments exceed size limit")
	ErrJobNotOwned        = errors.New("deferred: job not owned by this worker")
	ErrDuplicateJob       = errors.New("deferred: duplicate job with same unique key")
	ErrUniqueKeyTooLong   = errors.New("deferred: unique key exceeds maximum length")
)

// Deferred call errors.
var (
	// Capture side.
	ErrUnknownTarget     = errors.New("deferred: target is not registered")
	ErrInvalidTargetName = errors.New("deferred: invalid target name")
	ErrDuplicateTarget   = errors.New("deferred: target already registered under another name")
	ErrUnsupportedType   = errors.New("deferred: value cannot be serialized")
	ErrProxyConsumed     = errors.New("deferred: proxy already captured a call")
	ErrNotInstalled      = errors.New("deferred: no default delayer installed")

	// Replay side.
	ErrDisallowedType   = errors.New("deferred: payload contains a disallowed type")
	ErrMalformedRecord  = errors.New("deferred: malformed call record")
	ErrUnknownMethod    = errors.New("deferred: target does not respond to method")
	ErrArgumentMismatch = errors.New("deferred: arguments do not match method signature")
)

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}

// Permanent reports whether a failed job can never succeed on a later
// attempt: NoRetry errors and payloads that do not decode. Errors from the
// replayed method itself are retried unless wrapped with NoRetry.
func Permanent(err error) bool {
	var noRetry *NoRetryError
	return errors.As(err, &noRetry) ||
		errors.Is(err, ErrDisallowedType) ||
		errors.Is(err, ErrMalformedRecord)
}
