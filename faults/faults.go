// Package faults defines the typed outcome taxonomy surfaced by the
// resilience pipeline. Every rejection and failure is a *Fault carrying a
// machine-readable code, the dependency key it concerns, and the underlying
// cause where one exists, so callers can decide user-visible behavior
// without string matching.
package faults

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Fault is the unified error type returned by the pipeline.
type Fault struct {
	// Code is a machine-readable outcome code.
	Code Code `json:"code"`
	// Dependency is the dependency key the fault concerns.
	Dependency string `json:"dependency,omitempty"`
	// Message is a human-readable description.
	Message string `json:"message"`
	// Retryable indicates whether the caller may reasonably try again later.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the suggested status code for services that surface
	// this fault over HTTP (e.g. 503 for shed load).
	HTTPStatus int `json:"-"`
	// Details carries additional context (attempt counts, waits, budgets).
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error returns the string representation of the fault.
func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap returns the underlying cause.
func (f *Fault) Unwrap() error { return f.Cause }

// WithDetail sets a single detail key-value pair and returns the receiver.
func (f *Fault) WithDetail(key string, value any) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]any)
	}
	f.Details[key] = value
	return f
}

// New creates a Fault with retryability derived from the code.
func New(code Code, dependency, message string) *Fault {
	return &Fault{
		Code:       code,
		Dependency: dependency,
		Message:    message,
		Retryable:  IsRetryableCode(code),
		HTTPStatus: statusFor(code),
	}
}

// --- Constructors ---

// RateLimited reports that the rate limiter shed the call.
func RateLimited(dependency string) *Fault {
	return New(CodeRateLimited, dependency,
		fmt.Sprintf("rate limit exceeded for %q", dependency))
}

// BulkheadRejected reports that the bulkhead queue was full.
func BulkheadRejected(dependency string) *Fault {
	return New(CodeBulkheadRejected, dependency,
		fmt.Sprintf("bulkhead queue full for %q", dependency))
}

// BulkheadTimeout reports that a queued caller gave up waiting for a slot.
func BulkheadTimeout(dependency string, waited time.Duration) *Fault {
	return New(CodeBulkheadTimeout, dependency,
		fmt.Sprintf("gave up waiting for a %q slot", dependency)).
		WithDetail("waited", waited.String())
}

// CircuitOpen reports that the circuit breaker is failing fast.
func CircuitOpen(dependency string) *Fault {
	return New(CodeCircuitOpen, dependency,
		fmt.Sprintf("circuit breaker for %q is open", dependency))
}

// Timeout reports that a single attempt exceeded its deadline.
func Timeout(dependency string, limit time.Duration) *Fault {
	return New(CodeTimeout, dependency,
		fmt.Sprintf("%q did not respond within %s", dependency, limit)).
		WithDetail("timeout", limit.String())
}

// RetriesExhausted reports that all attempts failed; cause is the last error.
func RetriesExhausted(dependency string, attempts int, cause error) *Fault {
	f := New(CodeRetriesExhausted, dependency,
		fmt.Sprintf("all %d attempts against %q failed", attempts, dependency)).
		WithDetail("attempts", attempts)
	f.Cause = cause
	return f
}

// RetryBudgetExhausted reports that the elapsed budget ran out mid-schedule.
func RetryBudgetExhausted(dependency string, elapsed time.Duration, cause error) *Fault {
	f := New(CodeRetryBudgetExhausted, dependency,
		fmt.Sprintf("retry budget for %q exhausted after %s", dependency, elapsed)).
		WithDetail("elapsed", elapsed.String())
	f.Cause = cause
	return f
}

// NonRetryable reports an error classified as permanent.
func NonRetryable(dependency string, cause error) *Fault {
	f := New(CodeNonRetryable, dependency,
		fmt.Sprintf("permanent failure calling %q", dependency))
	f.Cause = cause
	return f
}

// InvalidConfig reports a configuration that failed validation.
func InvalidConfig(dependency string, cause error) *Fault {
	f := New(CodeInvalidConfig, dependency,
		fmt.Sprintf("invalid pipeline configuration for %q", dependency))
	f.Cause = cause
	return f
}

// --- Inspection helpers ---

// As extracts a *Fault from err's chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if stderrors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// CodeOf returns the fault code in err's chain, or "" for non-fault errors.
func CodeOf(err error) Code {
	if f, ok := As(err); ok {
		return f.Code
	}
	return ""
}

// HasCode reports whether err carries the given fault code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether err is a fault marked retryable. Non-fault
// errors return false.
func IsRetryable(err error) bool {
	if f, ok := As(err); ok {
		return f.Retryable
	}
	return false
}

func statusFor(code Code) int {
	switch code {
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBulkheadRejected, CodeBulkheadTimeout, CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case CodeTimeout, CodeRetriesExhausted, CodeRetryBudgetExhausted:
		return http.StatusGatewayTimeout
	case CodeNonRetryable:
		return http.StatusBadGateway
	case CodeInvalidConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
