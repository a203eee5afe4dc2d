package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/logger"
)

// Operation is a unit of work executed under the pipeline's protection.
// It must honor ctx cancellation where feasible.
type Operation[T any] func(ctx context.Context) (T, error)

// Pipeline composes the admission and execution stages for one dependency
// key: rate limit -> bulkhead -> circuit breaker -> retry(timeout(op)).
// Rejections from the admission stages short-circuit without running the
// operation and without touching breaker counters; execution outcomes feed
// back into the breaker.
type Pipeline struct {
	key     string
	config  Config
	limiter *RateLimiter // nil when rate limiting is disabled
	bh      *Bulkhead
	breaker *CircuitBreaker
	retry   RetryConfig
	log     *logger.Logger
}

// NewPipeline constructs a pipeline. The config is defaulted, then
// validated; an invalid config yields an INVALID_CONFIG fault.
func NewPipeline(key string, cfg Config, log *logger.Logger) (*Pipeline, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(key); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	p := &Pipeline{
		key:    key,
		config: cfg,
		log:    log.WithComponent("pipeline").WithDependency(key),
		bh: NewBulkhead(BulkheadConfig{
			Name:          key,
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueueSize:  cfg.MaxQueueSize,
			Logger:        log,
		}),
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			Name:              key,
			FailureThreshold:  cfg.FailureThreshold,
			WindowSize:        cfg.RollingWindowSize,
			MinimumCalls:      cfg.MinimumCalls,
			OpenDuration:      cfg.OpenDuration,
			HalfOpenMaxProbes: cfg.HalfOpenMaxProbes,
			HalfOpenSuccesses: cfg.HalfOpenSuccesses,
			OnStateChange:     cfg.OnStateChange,
			Logger:            log,
		}),
		retry: RetryConfig{
			Name:        key,
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.Backoff,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			MaxElapsed:  cfg.MaxElapsed,
			RetryIf:     cfg.RetryIf,
			Logger:      log,
		},
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = NewRateLimiter(RateLimiterConfig{
			Name:   key,
			Rate:   cfg.RequestsPerSecond,
			Burst:  cfg.Burst,
			Logger: log,
		})
	}
	return p, nil
}

// Execute runs op for this pipeline's dependency with the configured
// per-attempt timeout. The result is either op's success value or a typed
// fault: RATE_LIMITED, BULKHEAD_REJECTED, BULKHEAD_TIMEOUT, CIRCUIT_OPEN,
// TIMEOUT, NON_RETRYABLE, RETRIES_EXHAUSTED or RETRY_BUDGET_EXHAUSTED.
//
// Execute is a free function because Go methods cannot be generic; the
// error-only form is available as Pipeline.Run.
func Execute[T any](ctx context.Context, p *Pipeline, op Operation[T]) (T, error) {
	return execute(ctx, p, p.config.DefaultTimeout, op)
}

// ExecuteWithTimeout is Execute with a per-call attempt deadline override.
func ExecuteWithTimeout[T any](ctx context.Context, p *Pipeline, timeout time.Duration, op Operation[T]) (T, error) {
	return execute(ctx, p, timeout, op)
}

// Run is the error-only convenience form of Execute.
func (p *Pipeline) Run(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func execute[T any](ctx context.Context, p *Pipeline, timeout time.Duration, op Operation[T]) (T, error) {
	var zero T
	log := p.log.WithFields(logger.Fields(logger.FieldExecutionID, uuid.NewString()))

	if p.limiter != nil && !p.limiter.Allow() {
		log.Debug("rejected by rate limiter")
		return zero, faults.RateLimited(p.key)
	}

	permit, err := p.bh.Acquire(ctx, p.config.QueueWait)
	if err != nil {
		log.Debug("rejected by bulkhead", logger.Fields(logger.FieldError, err.Error()))
		return zero, err
	}
	defer permit.Release()

	if err := p.breaker.Allow(); err != nil {
		log.Debug("rejected by circuit breaker")
		return zero, err
	}

	start := time.Now()
	result, err := Retry(ctx, p.retry, func(ctx context.Context) (T, error) {
		return RunWithTimeout(ctx, p.key, timeout, op)
	})
	p.report(err)

	if err != nil {
		log.Warn("execution failed", logger.Fields(
			logger.FieldError, err.Error(),
			logger.FieldDuration, time.Since(start).Milliseconds(),
		))
		return zero, err
	}

	log.Debug("execution succeeded", logger.Fields(
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return result, nil
}

// report feeds the execution outcome into the circuit breaker. A caller
// that was admitted by a half-open breaker must always report, or the
// probe slot would leak.
func (p *Pipeline) report(err error) {
	if err == nil {
		p.breaker.RecordSuccess()
		return
	}
	// The caller walking away, by cancellation or by its own deadline, says
	// nothing about dependency health either way. Attempt timeouts are not
	// affected: those surface as TIMEOUT faults, not context errors.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.breaker.RecordAbandoned()
		return
	}
	if p.countsAsFailure(err) {
		p.breaker.RecordFailure()
		return
	}
	// Completed outcomes that do not indict the dependency (an application
	// error on a healthy service) count as successes in the window.
	p.breaker.RecordSuccess()
}

func (p *Pipeline) countsAsFailure(err error) bool {
	if p.config.CountsAsFailure != nil {
		return p.config.CountsAsFailure(err)
	}

	switch faults.CodeOf(err) {
	case faults.CodeTimeout, faults.CodeRetriesExhausted, faults.CodeRetryBudgetExhausted:
		return true
	case faults.CodeNonRetryable:
		// Permanent application errors do not degrade the circuit.
		return false
	default:
		return true
	}
}

// Key returns the dependency key this pipeline protects.
func (p *Pipeline) Key() string { return p.key }

// ConfigSnapshot returns a copy of the pipeline's configuration.
func (p *Pipeline) ConfigSnapshot() Config { return p.config }

// Breaker exposes the pipeline's circuit breaker.
func (p *Pipeline) Breaker() *CircuitBreaker { return p.breaker }

// Bulkhead exposes the pipeline's bulkhead.
func (p *Pipeline) Bulkhead() *Bulkhead { return p.bh }

// Stats is a point-in-time health view of one pipeline.
type Stats struct {
	Key          string  `json:"key"`
	CircuitState State   `json:"-"`
	StateName    string  `json:"circuit_state"`
	InUse        int     `json:"in_use"`
	Waiting      int     `json:"waiting"`
	Capacity     int     `json:"capacity"`
	FailureRate  float64 `json:"failure_rate"`
	WindowCalls  int     `json:"window_calls"`
	WindowFails  int     `json:"window_failures"`
}

// Stats returns the pipeline's current health view.
func (p *Pipeline) Stats() Stats {
	state := p.breaker.State()
	calls, fails := p.breaker.Counts()
	return Stats{
		Key:          p.key,
		CircuitState: state,
		StateName:    state.String(),
		InUse:        p.bh.InUse(),
		Waiting:      p.bh.Waiting(),
		Capacity:     p.bh.Capacity(),
		FailureRate:  p.breaker.FailureRate(),
		WindowCalls:  calls,
		WindowFails:  fails,
	}
}
