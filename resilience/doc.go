// Package resilience protects calls to unreliable downstream dependencies
// from cascading failure.
//
// Each dependency key owns one pipeline composing four layers around a
// caller-supplied operation:
//
//   - RateLimiter: optional token-bucket admission (sheds load first)
//   - Bulkhead: bounds concurrency with a bounded FIFO wait queue
//   - CircuitBreaker: fails fast once the dependency is judged unhealthy
//   - Retry + timeout: bounded backoff retries, each attempt deadlined
//
// The Registry owns pipeline lifecycle, one per dependency key:
//
//	reg := resilience.NewRegistry(resilience.WithLogger(log))
//	p, err := reg.GetOrCreate("openai", resilience.Config{
//	    MaxConcurrent:  8,
//	    MaxAttempts:    3,
//	    DefaultTimeout: 10 * time.Second,
//	})
//	completion, err := resilience.Execute(ctx, p, callProvider)
//
// Every rejection and failure is a typed *faults.Fault, so callers branch
// on faults.CodeOf(err) rather than on error strings. The package keeps no
// state across process restarts and no state across processes: each process
// judges dependency health independently.
package resilience
