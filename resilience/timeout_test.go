package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
)

func TestRunWithTimeout_FastOperationCompletes(t *testing.T) {
	result, err := RunWithTimeout(context.Background(), "test", 100*time.Millisecond,
		func(ctx context.Context) (string, error) {
			return "done", nil
		})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "done" {
		t.Errorf("expected done, got %s", result)
	}
}

func TestRunWithTimeout_SlowOperationTimesOut(t *testing.T) {
	start := time.Now()
	_, err := RunWithTimeout(context.Background(), "test", 100*time.Millisecond,
		func(ctx context.Context) (string, error) {
			time.Sleep(500 * time.Millisecond)
			return "late", nil
		})
	elapsed := time.Since(start)

	if !faults.HasCode(err, faults.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	// The caller observes the deadline, not the operation's duration.
	if elapsed >= 400*time.Millisecond {
		t.Errorf("returned at %v, expected ~100ms", elapsed)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("returned before the deadline: %v", elapsed)
	}
}

func TestRunWithTimeout_PropagatesCancellationToOperation(t *testing.T) {
	var sawCancel atomic.Bool
	done := make(chan struct{})

	_, err := RunWithTimeout(context.Background(), "test", 20*time.Millisecond,
		func(ctx context.Context) (int, error) {
			defer close(done)
			select {
			case <-ctx.Done():
				sawCancel.Store(true)
				return 0, ctx.Err()
			case <-time.After(time.Second):
				return 1, nil
			}
		})

	if !faults.HasCode(err, faults.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("operation never observed cancellation")
	}
	if !sawCancel.Load() {
		t.Error("operation context was not cancelled at the deadline")
	}
}

func TestRunWithTimeout_CallerCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := RunWithTimeout(ctx, "test", time.Second,
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if faults.HasCode(err, faults.CodeTimeout) {
		t.Error("caller cancellation must not be reported as a timeout")
	}
}

func TestRunWithTimeout_ZeroLimitDisablesDeadline(t *testing.T) {
	result, err := RunWithTimeout(context.Background(), "test", 0,
		func(ctx context.Context) (int, error) {
			if _, hasDeadline := ctx.Deadline(); hasDeadline {
				t.Error("expected no deadline with zero limit")
			}
			return 7, nil
		})

	if err != nil || result != 7 {
		t.Errorf("expected 7/nil, got %d/%v", result, err)
	}
}

func TestRunWithTimeout_OperationErrorPassesThrough(t *testing.T) {
	opErr := errors.New("upstream 500")
	_, err := RunWithTimeout(context.Background(), "test", time.Second,
		func(ctx context.Context) (int, error) {
			return 0, opErr
		})

	if !errors.Is(err, opErr) {
		t.Errorf("expected operation error, got %v", err)
	}
}
