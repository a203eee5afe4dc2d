package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/logger"
)

// RetryConfig configures retry behavior. Per-invocation state (attempt
// number, elapsed time, last error) lives on the stack of each Retry call,
// so one RetryConfig is safely shared by concurrent callers.
type RetryConfig struct {
	// Name identifies the dependency for faults and logging.
	Name string
	// MaxAttempts is the maximum number of attempts, including the first.
	// 1 means no retries.
	MaxAttempts int
	// Backoff selects the delay strategy between attempts.
	Backoff BackoffStrategy
	// BaseDelay is the first inter-attempt delay.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// MaxElapsed bounds total time across attempts and delays. Zero means
	// unbounded.
	MaxElapsed time.Duration
	// RetryIf classifies an error as transient. Nil uses DefaultRetryIf.
	RetryIf func(error) bool
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Logger receives retry-scheduling logs; nil means silent.
	Logger *logger.Logger
}

// DefaultRetryIf is the default transient-error classifier: faults honor
// their Retryable flag, cancellation is never retried, anything else is
// assumed transient.
func DefaultRetryIf(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if f, ok := faults.As(err); ok {
		return f.Retryable
	}
	return true
}

// Retry executes op until it succeeds, fails permanently, or the attempt
// count or elapsed budget is spent. Each failure surfaces as a typed fault:
// NON_RETRYABLE for permanent errors (first occurrence, no further
// attempts), RETRY_BUDGET_EXHAUSTED when MaxElapsed would be exceeded, and
// RETRIES_EXHAUSTED after the final attempt; all three wrap the underlying
// error. Context cancellation aborts the backoff sleep immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == "" {
		cfg.Backoff = BackoffExponentialJitter
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return zero, err
		}
		if !cfg.RetryIf(err) {
			return zero, faults.NonRetryable(cfg.Name, err)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(attempt, cfg)
		if cfg.MaxElapsed > 0 && time.Since(start)+delay >= cfg.MaxElapsed {
			return zero, faults.RetryBudgetExhausted(cfg.Name, time.Since(start), err)
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.Debug("retry scheduled", logger.Fields(
			logger.FieldDependency, cfg.Name,
			logger.FieldAttempt, attempt,
			logger.FieldDelay, delay.Milliseconds(),
			logger.FieldError, err.Error(),
		))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, faults.RetriesExhausted(cfg.Name, cfg.MaxAttempts, lastErr)
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// backoffDelay computes the inter-attempt delay for the given attempt.
// A zero or negative result is treated as zero.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	var delay time.Duration
	switch cfg.Backoff {
	case BackoffFixed:
		delay = cfg.BaseDelay
	case BackoffExponential, BackoffExponentialJitter:
		d := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
		if d > float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
		}
		delay = time.Duration(d)
		if cfg.Backoff == BackoffExponentialJitter && delay > 0 {
			delay = time.Duration(rand.Int63n(int64(delay) + 1))
		}
	default:
		delay = cfg.BaseDelay
	}

	if delay < 0 {
		return 0
	}
	return delay
}
