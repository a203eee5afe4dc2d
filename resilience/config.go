package resilience

import (
	"time"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/validation"
)

// BackoffStrategy selects how inter-attempt retry delays grow.
type BackoffStrategy string

const (
	// BackoffFixed waits BaseDelay between every attempt.
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffExponential doubles the delay each attempt, capped at MaxDelay.
	BackoffExponential BackoffStrategy = "exponential"
	// BackoffExponentialJitter picks a uniform random delay in
	// [0, exponential] (full jitter).
	BackoffExponentialJitter BackoffStrategy = "exponential-jitter"
)

// Config holds every tunable for one dependency key's pipeline. Zero values
// are filled in by ApplyDefaults; GetOrCreate validates before constructing.
type Config struct {
	// Circuit breaker.
	FailureThreshold  float64       `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gt=0,lte=1"`
	RollingWindowSize int           `yaml:"rolling_window_size" mapstructure:"rolling_window_size" validate:"min=1"`
	MinimumCalls      int           `yaml:"minimum_calls" mapstructure:"minimum_calls" validate:"min=0"`
	OpenDuration      time.Duration `yaml:"open_duration" mapstructure:"open_duration" validate:"min=0"`
	HalfOpenMaxProbes int           `yaml:"half_open_max_probes" mapstructure:"half_open_max_probes" validate:"min=1"`
	HalfOpenSuccesses int           `yaml:"half_open_successes" mapstructure:"half_open_successes" validate:"min=1"`

	// Bulkhead.
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"min=1"`
	MaxQueueSize  int           `yaml:"max_queue_size" mapstructure:"max_queue_size" validate:"min=0"`
	QueueWait     time.Duration `yaml:"queue_wait" mapstructure:"queue_wait" validate:"min=0"`

	// Retry.
	MaxAttempts int             `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1"`
	Backoff     BackoffStrategy `yaml:"backoff" mapstructure:"backoff" validate:"oneof=fixed exponential exponential-jitter"`
	BaseDelay   time.Duration   `yaml:"base_delay" mapstructure:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration   `yaml:"max_delay" mapstructure:"max_delay" validate:"min=0"`
	MaxElapsed  time.Duration   `yaml:"max_elapsed" mapstructure:"max_elapsed" validate:"min=0"`

	// Timeout governor.
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout" validate:"min=0"`

	// Rate limiter. Disabled unless RequestsPerSecond > 0.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" mapstructure:"burst" validate:"min=0"`

	// RetryIf classifies an error as transient (retry) or permanent (stop).
	// Nil means the default classification: faults honor their Retryable
	// flag, context cancellation is never retried, everything else is.
	RetryIf func(error) bool `yaml:"-" mapstructure:"-" validate:"-"`

	// CountsAsFailure decides whether a failed call degrades the circuit.
	// Nil falls back to RetryIf: a deliberate application error should not
	// open the circuit for an otherwise healthy dependency.
	CountsAsFailure func(error) bool `yaml:"-" mapstructure:"-" validate:"-"`

	// OnStateChange is invoked on every circuit breaker transition.
	OnStateChange func(dependency string, from, to State) `yaml:"-" mapstructure:"-" validate:"-"`
}

// DefaultConfig returns the configuration used when a caller supplies none.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 0.5
	}
	if c.RollingWindowSize <= 0 {
		c.RollingWindowSize = 10
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = c.RollingWindowSize
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 30 * time.Second
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = 1
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = 1
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	// MaxQueueSize zero is meaningful: no queue, reject when saturated.
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff == "" {
		c.Backoff = BackoffExponentialJitter
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	// A queue nobody waits on is dead: configuring MaxQueueSize without
	// QueueWait gets one attempt's worth of patience.
	if c.MaxQueueSize > 0 && c.QueueWait <= 0 {
		c.QueueWait = c.DefaultTimeout
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond)
	}
}

// Validate checks field ranges and cross-field consistency. The dependency
// key is only used to label the returned fault.
func (c Config) Validate(dependency string) error {
	if err := validation.Struct(c); err != nil {
		return faults.InvalidConfig(dependency, err)
	}

	v := validation.New()
	v.Custom(c.MinimumCalls <= c.RollingWindowSize,
		"minimum_calls", "must not exceed rolling_window_size")
	v.Custom(c.BaseDelay <= c.MaxDelay,
		"base_delay", "must not exceed max_delay")
	v.Custom(c.HalfOpenSuccesses <= c.HalfOpenMaxProbes,
		"half_open_successes", "must not exceed half_open_max_probes")
	if err := v.Err(); err != nil {
		return faults.InvalidConfig(dependency, err)
	}
	return nil
}
