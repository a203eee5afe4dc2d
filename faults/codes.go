package faults

// Code is a machine-readable identifier for a pipeline outcome.
type Code string

// Admission rejections (the protected operation never ran).
const (
	// CodeRateLimited indicates the per-dependency rate limiter shed the call.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeBulkheadRejected indicates the bulkhead queue was full.
	CodeBulkheadRejected Code = "BULKHEAD_REJECTED"
	// CodeBulkheadTimeout indicates the caller waited for a slot and gave up.
	CodeBulkheadTimeout Code = "BULKHEAD_TIMEOUT"
	// CodeCircuitOpen indicates the circuit breaker is failing fast.
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

// Execution failures (the operation ran, or was attempted).
const (
	// CodeTimeout indicates a single attempt exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"
	// CodeRetriesExhausted indicates every configured attempt failed.
	CodeRetriesExhausted Code = "RETRIES_EXHAUSTED"
	// CodeRetryBudgetExhausted indicates the overall elapsed budget ran out
	// before the attempt count did.
	CodeRetryBudgetExhausted Code = "RETRY_BUDGET_EXHAUSTED"
	// CodeNonRetryable indicates the error was classified as permanent and
	// surfaced without retrying.
	CodeNonRetryable Code = "NON_RETRYABLE"
)

// Configuration errors.
const (
	// CodeInvalidConfig indicates a pipeline configuration failed validation.
	CodeInvalidConfig Code = "INVALID_CONFIG"
)

var retryableCodes = map[Code]bool{
	CodeRateLimited:          true,
	CodeBulkheadRejected:     true,
	CodeBulkheadTimeout:      true,
	CodeCircuitOpen:          true,
	CodeTimeout:              true,
	CodeRetriesExhausted:     false,
	CodeRetryBudgetExhausted: false,
	CodeNonRetryable:         false,
	CodeInvalidConfig:        false,
}

// IsRetryableCode reports whether the code describes a condition that may
// clear on its own. Admission rejections are retryable from the caller's
// point of view (try again later), but the pipeline itself never retries
// them; see the retry policy documentation.
func IsRetryableCode(code Code) bool {
	return retryableCodes[code]
}
