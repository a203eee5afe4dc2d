package resilience

import (
	"sync"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/logger"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests until the open duration elapses.
	StateOpen
	// StateHalfOpen allows a limited number of probe requests.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the dependency this breaker protects.
	Name string
	// FailureThreshold is the failure ratio within the rolling window at
	// which the breaker trips, in (0, 1].
	FailureThreshold float64
	// WindowSize is the number of recent outcomes tracked.
	WindowSize int
	// MinimumCalls is the floor of recorded outcomes before the ratio is
	// consulted, so a nearly empty window cannot trip the breaker.
	MinimumCalls int
	// OpenDuration is how long the breaker stays open before probing.
	OpenDuration time.Duration
	// HalfOpenMaxProbes caps concurrent probes while half-open.
	HalfOpenMaxProbes int
	// HalfOpenSuccesses is the number of consecutive probe successes
	// required to close the circuit.
	HalfOpenSuccesses int
	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to State)
	// Logger receives state-change logs; nil means silent.
	Logger *logger.Logger
}

// CircuitBreaker is a per-dependency state machine that fails fast once the
// dependency is judged unhealthy and probes for recovery.
//
// States:
//   - Closed: normal operation, outcomes feed the rolling window
//   - Open: requests rejected until OpenDuration elapses
//   - Half-open: up to HalfOpenMaxProbes concurrent trial calls
type CircuitBreaker struct {
	config CircuitBreakerConfig
	log    *logger.Logger

	mu              sync.Mutex
	state           State
	window          *window
	openedAt        time.Time
	lastStateChange time.Time
	probesInFlight  int
	probeSuccesses  int
}

// NewCircuitBreaker creates a circuit breaker. Zero-valued config fields get
// conservative defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 || config.FailureThreshold > 1 {
		config.FailureThreshold = 0.5
	}
	if config.WindowSize <= 0 {
		config.WindowSize = 10
	}
	if config.MinimumCalls <= 0 || config.MinimumCalls > config.WindowSize {
		config.MinimumCalls = config.WindowSize
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 30 * time.Second
	}
	if config.HalfOpenMaxProbes <= 0 {
		config.HalfOpenMaxProbes = 1
	}
	if config.HalfOpenSuccesses <= 0 {
		config.HalfOpenSuccesses = 1
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &CircuitBreaker{
		config:          config,
		log:             log.WithComponent("circuit_breaker").WithDependency(config.Name),
		state:           StateClosed,
		window:          newWindow(config.WindowSize),
		lastStateChange: time.Now(),
	}
}

// Allow decides whether a call may proceed. It returns nil when permitted
// and a CIRCUIT_OPEN fault otherwise. A permitted half-open caller occupies
// one probe slot until it reports an outcome.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState(time.Now()) {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if cb.probesInFlight < cb.config.HalfOpenMaxProbes {
			cb.probesInFlight++
			return nil
		}
		return faults.CircuitOpen(cb.config.Name).WithDetail("reason", "probe quota exhausted")
	default:
		return faults.CircuitOpen(cb.config.Name)
	}
}

// RecordSuccess feeds a successful outcome into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.currentState(now) {
	case StateClosed:
		cb.window.record(false)
	case StateHalfOpen:
		// Only probes admitted in half-open drive the recovery verdict. A
		// stale outcome from a call admitted before the trip says nothing
		// about whether the dependency has recovered.
		if cb.probesInFlight == 0 {
			return
		}
		cb.probesInFlight--
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.config.HalfOpenSuccesses {
			cb.toState(StateClosed, now)
		}
	}
}

// RecordFailure feeds a failed outcome into the breaker. The caller is
// responsible for classification: only failures that count against the
// circuit should reach this method.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.currentState(now) {
	case StateClosed:
		cb.window.record(true)
		if cb.window.total() >= cb.config.MinimumCalls &&
			cb.window.failureRate() >= cb.config.FailureThreshold {
			cb.toState(StateOpen, now)
		}
	case StateHalfOpen:
		// Same probe accounting as RecordSuccess: a stale failure must not
		// re-open the circuit or restart the open timer.
		if cb.probesInFlight == 0 {
			return
		}
		cb.probesInFlight--
		cb.toState(StateOpen, now)
	}
	// A late outcome arriving while open (an abandoned call finishing in
	// the background) changes nothing: the window resets on transition.
}

// RecordAbandoned releases a half-open probe slot without counting an
// outcome. Used when a permitted call was cancelled by its caller: that
// says nothing about dependency health either way.
func (cb *CircuitBreaker) RecordAbandoned() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.currentState(time.Now()) == StateHalfOpen {
		cb.releaseProbe()
	}
}

// State returns the current state, applying the open-duration transition.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(time.Now())
}

// FailureRate returns the failure ratio within the rolling window.
func (cb *CircuitBreaker) FailureRate() float64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.window.failureRate()
}

// Counts returns recorded outcomes and failures within the rolling window.
func (cb *CircuitBreaker) Counts() (calls, failures int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.window.total(), cb.window.failureCount()
}

// LastStateChange returns when the breaker last transitioned.
func (cb *CircuitBreaker) LastStateChange() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastStateChange
}

// Reset returns the breaker to closed with an empty window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toState(StateClosed, time.Now())
	cb.window.reset()
}

// currentState applies the OPEN -> HALF_OPEN timer transition. Callers must
// hold cb.mu.
func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.config.OpenDuration {
		cb.toState(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) releaseProbe() {
	if cb.probesInFlight > 0 {
		cb.probesInFlight--
	}
}

// toState transitions and resets per-state counters. Callers must hold cb.mu.
func (cb *CircuitBreaker) toState(to State, now time.Time) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.lastStateChange = now
	cb.window.reset()
	cb.probesInFlight = 0
	cb.probeSuccesses = 0
	if to == StateOpen {
		cb.openedAt = now
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}

	cb.log.Info("circuit breaker state changed", logger.Fields(
		"from", from.String(),
		"to", to.String(),
	))
}
