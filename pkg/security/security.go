package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

const (
	MaxJobTypeNameLength  = 255
	MaxQueueNameLength    = 255
	MaxUniqueKeyLength    = 255
	MaxTargetNameLength   = 255
	MaxMethodNameLength   = 255
	MaxErrorMessageLength = 4096

	// MaxJobArgsSize caps a stored payload at 1MB.
	MaxJobArgsSize = 1 << 20

	MaxRetries     = 100
	MaxConcurrency = 1000
)

// nameRule is the shape a stored identifier must have.
type nameRule struct {
	max     int
	pattern *regexp.Regexp
	invalid error
	tooLong error
}

func (r nameRule) check(name string) error {
	switch {
	case name == "":
		return r.invalid
	case len(name) > r.max:
		return r.tooLong
	case !r.pattern.MatchString(name):
		return r.invalid
	}
	return nil
}

var (
	jobTypeRule = nameRule{
		max:     MaxJobTypeNameLength,
		pattern: regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`),
		invalid: core.ErrInvalidJobTypeName,
		tooLong: core.ErrJobTypeNameTooLong,
	}
	queueRule = nameRule{
		max:     MaxQueueNameLength,
		pattern: jobTypeRule.pattern,
		invalid: core.ErrInvalidQueueName,
		tooLong: core.ErrQueueNameTooLong,
	}
	// Go identifiers, dotted package paths and Ruby constants (Billing::Invoice).
	targetRule = nameRule{
		max:     MaxTargetNameLength,
		pattern: regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\.]*(::[a-zA-Z][a-zA-Z0-9_\.]*)*$`),
		invalid: core.ErrInvalidTargetName,
		tooLong: core.ErrInvalidTargetName,
	}
	// Exported Go names and snake_case Ruby names, which may end in ? or !.
	methodRule = nameRule{
		max:     MaxMethodNameLength,
		pattern: regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*[?!]?$`),
		invalid: core.ErrUnknownMethod,
		tooLong: core.ErrUnknownMethod,
	}
)

// ValidateJobTypeName checks a handler name.
func ValidateJobTypeName(name string) error { return jobTypeRule.check(name) }

// ValidateQueueName checks a queue name.
func ValidateQueueName(name string) error { return queueRule.check(name) }

// ValidateTargetName checks the name a receiver is registered under.
func ValidateTargetName(name string) error { return targetRule.check(name) }

// ValidateMethodName checks a method name before it is captured.
func ValidateMethodName(name string) error { return methodRule.check(name) }

// ValidateUniqueKey checks a deduplication key. Any content is allowed.
func ValidateUniqueKey(key string) error {
	if len(key) > MaxUniqueKeyLength {
		return core.ErrUniqueKeyTooLong
	}
	return nil
}

// SanitizeErrorMessage drops control characters other than whitespace and
// truncates msg to MaxErrorMessageLength runes.
func SanitizeErrorMessage(msg string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			return r
		}
		return -1
	}, msg)

	if utf8.RuneCountInString(clean) <= MaxErrorMessageLength {
		return clean
	}
	runes := []rune(clean)
	return string(runes[:MaxErrorMessageLength-3]) + "..."
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

// ClampRetries limits a retry budget to [0, MaxRetries].
func ClampRetries(n int) int { return clamp(n, 0, MaxRetries) }

// ClampConcurrency limits worker concurrency to [1, MaxConcurrency].
func ClampConcurrency(n int) int { return clamp(n, 1, MaxConcurrency) }
