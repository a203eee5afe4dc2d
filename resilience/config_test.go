package resilience

import (
	"testing"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.FailureThreshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", cfg.FailureThreshold)
	}
	if cfg.RollingWindowSize != 10 {
		t.Errorf("expected window 10, got %d", cfg.RollingWindowSize)
	}
	if cfg.MinimumCalls != cfg.RollingWindowSize {
		t.Errorf("expected minimum calls to follow window size, got %d", cfg.MinimumCalls)
	}
	if cfg.OpenDuration != 30*time.Second {
		t.Errorf("expected 30s open duration, got %v", cfg.OpenDuration)
	}
	if cfg.HalfOpenMaxProbes != 1 || cfg.HalfOpenSuccesses != 1 {
		t.Errorf("expected single probe defaults, got %d/%d",
			cfg.HalfOpenMaxProbes, cfg.HalfOpenSuccesses)
	}
	if cfg.MaxConcurrent != 10 {
		t.Errorf("expected 10 concurrent, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxQueueSize != 0 {
		t.Errorf("expected no queue by default, got %d", cfg.MaxQueueSize)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.Backoff != BackoffExponentialJitter {
		t.Errorf("expected jittered backoff, got %s", cfg.Backoff)
	}
	if cfg.BaseDelay != 100*time.Millisecond || cfg.MaxDelay != 10*time.Second {
		t.Errorf("expected 100ms/10s delays, got %v/%v", cfg.BaseDelay, cfg.MaxDelay)
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.DefaultTimeout)
	}
	if cfg.RequestsPerSecond != 0 {
		t.Errorf("expected rate limiting off by default, got %v", cfg.RequestsPerSecond)
	}
}

func TestConfig_ApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		FailureThreshold:  0.8,
		RollingWindowSize: 20,
		MaxConcurrent:     2,
		MaxAttempts:       1,
	}
	cfg.ApplyDefaults()

	if cfg.FailureThreshold != 0.8 || cfg.RollingWindowSize != 20 {
		t.Errorf("defaults overrode explicit breaker values: %v/%d",
			cfg.FailureThreshold, cfg.RollingWindowSize)
	}
	if cfg.MaxConcurrent != 2 || cfg.MaxAttempts != 1 {
		t.Errorf("defaults overrode explicit values: %d/%d",
			cfg.MaxConcurrent, cfg.MaxAttempts)
	}
	if cfg.MinimumCalls != 20 {
		t.Errorf("expected minimum calls to follow explicit window, got %d", cfg.MinimumCalls)
	}
}

func TestConfig_QueueWaitFollowsTimeout(t *testing.T) {
	cfg := Config{MaxConcurrent: 2, MaxQueueSize: 1}
	cfg.ApplyDefaults()
	if cfg.QueueWait != cfg.DefaultTimeout {
		t.Errorf("expected queue wait to default to the timeout, got %v", cfg.QueueWait)
	}

	cfg = Config{MaxConcurrent: 2, MaxQueueSize: 1, QueueWait: 50 * time.Millisecond}
	cfg.ApplyDefaults()
	if cfg.QueueWait != 50*time.Millisecond {
		t.Errorf("defaults overrode explicit queue wait: %v", cfg.QueueWait)
	}

	cfg = Config{MaxConcurrent: 2}
	cfg.ApplyDefaults()
	if cfg.QueueWait != 0 {
		t.Errorf("expected no queue wait without a queue, got %v", cfg.QueueWait)
	}
}

func TestConfig_BurstFollowsRate(t *testing.T) {
	cfg := Config{RequestsPerSecond: 25}
	cfg.ApplyDefaults()
	if cfg.Burst != 25 {
		t.Errorf("expected burst to default to the rate, got %d", cfg.Burst)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults are valid", func(c *Config) {}, true},
		{"threshold above one", func(c *Config) { c.FailureThreshold = 1.5 }, false},
		{"negative threshold", func(c *Config) { c.FailureThreshold = -0.1 }, false},
		{"unknown backoff", func(c *Config) { c.Backoff = "quadratic" }, false},
		{"negative queue", func(c *Config) { c.MaxQueueSize = -1 }, false},
		{"minimum calls beyond window", func(c *Config) {
			c.RollingWindowSize = 5
			c.MinimumCalls = 6
		}, false},
		{"base delay beyond max", func(c *Config) {
			c.BaseDelay = time.Minute
			c.MaxDelay = time.Second
		}, false},
		{"more required successes than probes", func(c *Config) {
			c.HalfOpenMaxProbes = 1
			c.HalfOpenSuccesses = 2
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate("payments")
			if tt.ok && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tt.ok {
				if !faults.HasCode(err, faults.CodeInvalidConfig) {
					t.Errorf("expected INVALID_CONFIG, got %v", err)
				}
			}
		})
	}
}

func TestConfig_ValidateLabelsDependency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	err := cfg.Validate("payments")

	f, ok := faults.As(err)
	if !ok {
		t.Fatalf("expected a fault, got %v", err)
	}
	if f.Dependency != "payments" {
		t.Errorf("expected the dependency label, got %q", f.Dependency)
	}
}
