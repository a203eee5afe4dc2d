package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/logger"
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies the dependency this bulkhead isolates.
	Name string
	// MaxConcurrent is the maximum number of in-flight calls.
	MaxConcurrent int
	// MaxQueueSize bounds the admission queue. Zero disables queueing:
	// a saturated bulkhead rejects immediately.
	MaxQueueSize int
	// Logger receives rejection logs; nil means silent.
	Logger *logger.Logger
}

// Permit represents one admitted call. Release it exactly once on every
// exit path; Release is safe to call twice but the second call is a no-op.
type Permit struct {
	id uuid.UUID
	b  *Bulkhead

	released bool // guarded by b.mu
}

// ID returns the permit's identity, useful for log correlation.
func (p *Permit) ID() uuid.UUID { return p.id }

// Release returns the slot to the bulkhead, waking the longest-waiting
// queued caller if any.
func (p *Permit) Release() {
	p.b.release(p)
}

// waiter is one queued admission request. The permit is handed over on a
// buffered channel under the bulkhead lock, so a waiter absent from the
// queue has a permit in flight.
type waiter struct {
	ch chan *Permit
}

// Bulkhead limits concurrent access to one dependency so a slow dependency
// cannot starve goroutines needed by others. Queueing is bounded: under
// sustained overload, excess callers are shed instead of accumulating.
// Admission from the queue is FIFO.
type Bulkhead struct {
	config BulkheadConfig
	log    *logger.Logger

	mu    sync.Mutex
	inUse int
	queue []*waiter
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.MaxQueueSize < 0 {
		config.MaxQueueSize = 0
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Bulkhead{
		config: config,
		log:    log.WithComponent("bulkhead").WithDependency(config.Name),
	}
}

// Acquire obtains a slot, waiting up to wait while queued. It returns a
// BULKHEAD_REJECTED fault when the queue is already full (or wait <= 0 and
// the bulkhead is saturated), a BULKHEAD_TIMEOUT fault when wait elapses,
// and ctx.Err() when the caller abandons the wait. An abandoned wait is
// dequeued and never consumes a slot.
func (b *Bulkhead) Acquire(ctx context.Context, wait time.Duration) (*Permit, error) {
	b.mu.Lock()
	if b.inUse < b.config.MaxConcurrent {
		b.inUse++
		p := &Permit{id: uuid.New(), b: b}
		b.mu.Unlock()
		return p, nil
	}

	if wait <= 0 || len(b.queue) >= b.config.MaxQueueSize {
		queued := len(b.queue)
		b.mu.Unlock()
		b.log.Debug("admission rejected", logger.Fields(
			logger.FieldReason, "queue full",
			"queued", queued,
		))
		return nil, faults.BulkheadRejected(b.config.Name)
	}

	w := &waiter{ch: make(chan *Permit, 1)}
	b.queue = append(b.queue, w)
	b.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case p := <-w.ch:
		return p, nil
	case <-timer.C:
		return b.abandon(w, faults.BulkheadTimeout(b.config.Name, wait))
	case <-ctx.Done():
		return b.abandon(w, ctx.Err())
	}
}

// Execute runs fn inside the bulkhead with scoped acquisition, guaranteeing
// the release on every exit path.
func (b *Bulkhead) Execute(ctx context.Context, wait time.Duration, fn func() error) error {
	permit, err := b.Acquire(ctx, wait)
	if err != nil {
		return err
	}
	defer permit.Release()
	return fn()
}

// InUse returns the number of in-flight calls.
func (b *Bulkhead) InUse() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// Waiting returns the number of queued admission requests.
func (b *Bulkhead) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Capacity returns the maximum concurrent calls allowed.
func (b *Bulkhead) Capacity() int {
	return b.config.MaxConcurrent
}

// abandon removes a waiter that timed out or was cancelled. When the waiter
// is no longer queued, a release handed it a permit concurrently; that
// permit is returned to the pool and the rejection stands.
func (b *Bulkhead) abandon(w *waiter, cause error) (*Permit, error) {
	b.mu.Lock()
	for i, qw := range b.queue {
		if qw == w {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.mu.Unlock()
			return nil, cause
		}
	}
	b.mu.Unlock()

	p := <-w.ch
	p.Release()
	return nil, cause
}

// release frees a permit's slot, transferring it directly to the head of
// the queue when one is waiting.
func (b *Bulkhead) release(p *Permit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.released {
		return
	}
	p.released = true

	if len(b.queue) > 0 {
		w := b.queue[0]
		b.queue = b.queue[1:]
		// Slot transferred, inUse unchanged. The channel is buffered, so
		// this cannot block while holding the lock.
		w.ch <- &Permit{id: uuid.New(), b: b}
		return
	}

	b.inUse--
}
