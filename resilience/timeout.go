package resilience

import (
	"context"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
)

// RunWithTimeout races op against a deadline. On expiry it returns a
// TIMEOUT fault and abandons the operation: the operation's context is
// cancelled so cooperative work stops promptly, but a non-cooperative
// operation keeps consuming resources in the background. Callers must treat
// a TIMEOUT as a failure even if the operation later completes. The caller's
// own cancellation is surfaced as ctx.Err(), not as a timeout.
//
// A non-positive limit disables the deadline.
func RunWithTimeout[T any](ctx context.Context, name string, limit time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if limit <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, limit)

	type outcome struct {
		result T
		err    error
	}
	// Buffered so the abandoned operation can finish without leaking.
	done := make(chan outcome, 1)

	go func() {
		result, err := op(opCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		cancel()
		return out.result, out.err
	case <-opCtx.Done():
		cancel()
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, faults.Timeout(name, limit)
	}
}
