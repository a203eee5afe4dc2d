package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
)

func TestBulkhead_AdmitsWithinCapacity(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 3})

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), 0, func() error {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return nil
			})
			if err != nil {
				t.Errorf("expected admission, got %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if b.InUse() != 0 {
		t.Errorf("expected all slots released, got %d in use", b.InUse())
	}
}

func TestBulkhead_RejectsWhenSaturatedAndNoQueue(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxQueueSize: 0})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer permit.Release()

	_, err = b.Acquire(context.Background(), time.Second)
	if !faults.HasCode(err, faults.CodeBulkheadRejected) {
		t.Errorf("expected BULKHEAD_REJECTED, got %v", err)
	}
}

func TestBulkhead_QueueFullRejectsImmediately(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxQueueSize: 1})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer permit.Release()

	// Occupy the single queue slot.
	queued := make(chan error, 1)
	go func() {
		p, err := b.Acquire(context.Background(), time.Second)
		if p != nil {
			p.Release()
		}
		queued <- err
	}()
	waitFor(t, func() bool { return b.Waiting() == 1 })

	// Queue is full: rejection must be immediate, not after a wait.
	start := time.Now()
	_, err = b.Acquire(context.Background(), time.Second)
	if !faults.HasCode(err, faults.CodeBulkheadRejected) {
		t.Errorf("expected BULKHEAD_REJECTED, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("queue-full rejection blocked for %v", elapsed)
	}

	permit.Release()
	if err := <-queued; err != nil {
		t.Errorf("queued caller should have been admitted, got %v", err)
	}
}

func TestBulkhead_QueuedCallerGetsFreedSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxQueueSize: 2})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	admitted := make(chan *Permit, 1)
	go func() {
		p, err := b.Acquire(context.Background(), time.Second)
		if err != nil {
			t.Errorf("queued acquire failed: %v", err)
		}
		admitted <- p
	}()
	waitFor(t, func() bool { return b.Waiting() == 1 })

	permit.Release()

	select {
	case p := <-admitted:
		if b.InUse() != 1 {
			t.Errorf("expected slot transferred, got %d in use", b.InUse())
		}
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("queued caller was not admitted")
	}
}

func TestBulkhead_FIFOAdmissionOrder(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxQueueSize: 3})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p, err := b.Acquire(context.Background(), 2*time.Second)
			if err != nil {
				t.Errorf("caller %d rejected: %v", n, err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			p.Release()
		}(i)
		// Serialize queue entry so FIFO order is observable.
		waitFor(t, func() bool { return b.Waiting() == i })
	}

	permit.Release()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i+1 {
			t.Fatalf("expected FIFO order [1 2 3], got %v", order)
		}
	}
}

func TestBulkhead_WaitTimeout(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxQueueSize: 1})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer permit.Release()

	start := time.Now()
	_, err = b.Acquire(context.Background(), 30*time.Millisecond)
	elapsed := time.Since(start)

	if !faults.HasCode(err, faults.CodeBulkheadTimeout) {
		t.Errorf("expected BULKHEAD_TIMEOUT, got %v", err)
	}
	if elapsed < 25*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}
	if b.Waiting() != 0 {
		t.Errorf("timed-out waiter still queued: %d", b.Waiting())
	}
}

func TestBulkhead_CancelledWaiterIsDequeued(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxQueueSize: 1})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Acquire(ctx, time.Second)
		errCh <- err
	}()
	waitFor(t, func() bool { return b.Waiting() == 1 })

	cancel()

	if err := <-errCh; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if b.Waiting() != 0 {
		t.Errorf("cancelled waiter still queued: %d", b.Waiting())
	}

	// The held slot is unaffected by the abandoned wait.
	if b.InUse() != 1 {
		t.Errorf("expected 1 in use, got %d", b.InUse())
	}
	permit.Release()
	if b.InUse() != 0 {
		t.Errorf("expected 0 in use after release, got %d", b.InUse())
	}
}

func TestBulkhead_DoubleReleaseIsNoop(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 2})

	permit, err := b.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	permit.Release()
	permit.Release()

	if b.InUse() != 0 {
		t.Errorf("double release corrupted the count: %d in use", b.InUse())
	}
}

func TestBulkhead_NeverExceedsCapacityUnderLoad(t *testing.T) {
	const capacity = 4
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: capacity, MaxQueueSize: 100})

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), time.Second, func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("unexpected rejection: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > capacity {
		t.Errorf("active count reached %d, capacity is %d", peak, capacity)
	}
	if b.InUse() != 0 {
		t.Errorf("expected drained bulkhead, got %d in use", b.InUse())
	}
}

// waitFor polls cond until it holds or the test deadline is near.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
