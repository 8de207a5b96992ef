package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoRetryError(t *testing.T) {
	originalErr := errors.New("permanent failure")
	wrapped := NoRetry(originalErr)

	var noRetryErr *NoRetryError
	assert.True(t, errors.As(wrapped, &noRetryErr))
	assert.Equal(t, originalErr, noRetryErr.Unwrap())
	assert.Contains(t, noRetryErr.Error(), "no retry")
	assert.Contains(t, noRetryErr.Error(), "permanent failure")
}

func TestRetryAfterError(t *testing.T) {
	originalErr := errors.New("temporary failure")
	delay := 5 * time.Second
	wrapped := RetryAfter(delay, originalErr)

	var retryErr *RetryAfterError
	assert.True(t, errors.As(wrapped, &retryErr))
	assert.Equal(t, originalErr, retryErr.Unwrap())
	assert.Equal(t, delay, retryErr.Delay)
	assert.Contains(t, retryErr.Error(), "retry after")
	assert.Contains(t, retryErr.Error(), "5s")
}

func TestErrorVariables(t *testing.T) {
	assert.Contains(t, ErrInvalidJobTypeName.Error(), "invalid job type name")
	assert.Contains(t, ErrJobNotOwned.Error(), "not owned")
	assert.Contains(t, ErrDuplicateJob.Error(), "duplicate")
	assert.Contains(t, ErrDisallowedType.Error(), "disallowed")
	assert.Contains(t, ErrUnknownMethod.Error(), "does not respond")
}

func TestDeferredErrors_WrapWithDetail(t *testing.T) {
	err := fmt.Errorf("%w: %s", ErrDisallowedType, "!ruby/object:User")

	assert.True(t, errors.Is(err, ErrDisallowedType))
	assert.False(t, errors.Is(err, ErrMalformedRecord))
	assert.Contains(t, err.Error(), "!ruby/object:User")
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NoRetry(errors.New("bad input")), true},
		{fmt.Errorf("job: %w", NoRetry(errors.New("bad input"))), true},
		{fmt.Errorf("%w: !ruby/object:User", ErrDisallowedType), true},
		{fmt.Errorf("%w: want 3 elements", ErrMalformedRecord), true},
		{fmt.Errorf("%w: Report", ErrUnknownTarget), false},
		{RetryAfter(time.Minute, errors.New("rate limited")), false},
		{errors.New("smtp timeout"), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Permanent(tt.err), "%v", tt.err)
	}
}
