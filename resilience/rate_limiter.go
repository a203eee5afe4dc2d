package resilience

import (
	"sync"
	"time"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/logger"
)

// RateLimiterConfig configures a token bucket rate limiter.
type RateLimiterConfig struct {
	// Name identifies the dependency this limiter protects.
	Name string
	// Rate is the number of requests allowed per second.
	Rate float64
	// Burst is the maximum burst size.
	Burst int
	// Logger receives shed-load logs; nil means silent.
	Logger *logger.Logger
}

// RateLimiter is a token bucket admission stage. The pipeline runs it ahead
// of the bulkhead so shed requests never occupy a slot or reach the breaker.
type RateLimiter struct {
	config RateLimiterConfig
	log    *logger.Logger

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10.0
	}
	if config.Burst <= 0 {
		config.Burst = int(config.Rate)
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &RateLimiter{
		config:     config,
		log:        log.WithComponent("rate_limiter").WithDependency(config.Name),
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available. It never blocks.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN consumes n tokens if available. It never blocks.
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		return true
	}

	rl.log.Debug("request shed", logger.Fields("tokens", rl.tokens))
	return false
}

// Execute runs fn if a token is available, otherwise returns a RATE_LIMITED
// fault without invoking fn.
func (rl *RateLimiter) Execute(fn func() error) error {
	if !rl.Allow() {
		return faults.RateLimited(rl.config.Name)
	}
	return fn()
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate returns the configured requests per second.
func (rl *RateLimiter) Rate() float64 { return rl.config.Rate }

// Burst returns the configured burst size.
func (rl *RateLimiter) Burst() int { return rl.config.Burst }

// refill adds tokens for the time elapsed since the last refill, capped at
// the burst size. Callers must hold rl.mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.config.Rate
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}
