package resilience

import (
	"fmt"
	"sync"

	"github.com/bulwarkkit/bulwark/logger"
)

// Registry owns one pipeline per dependency key, created lazily. It is the
// only structure with registry-wide locking, and only creation of a new key
// takes the write lock: lookups are read-mostly and do not contend.
//
// Registries are explicit values with injected configuration rather than a
// package-level singleton, so tests get isolation from a fresh registry.
type Registry struct {
	log      *logger.Logger
	defaults Config

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// RegistryOption customizes a registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger handed to every created pipeline.
func WithLogger(log *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// WithDefaults sets the config used by Pipeline lookups that supply none.
func WithDefaults(cfg Config) RegistryOption {
	return func(r *Registry) { r.defaults = cfg }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:       logger.Nop(),
		defaults:  DefaultConfig(),
		pipelines: make(map[string]*Pipeline),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the pipeline for key, constructing it from cfg on
// first use. A differing cfg for an existing key is ignored (first writer
// wins); reconfiguring an existing key requires Reset. An invalid cfg
// yields an INVALID_CONFIG fault.
func (r *Registry) GetOrCreate(key string, cfg Config) (*Pipeline, error) {
	r.mu.RLock()
	p, ok := r.pipelines[key]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-checked: another caller may have created it meanwhile.
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}

	p, err := NewPipeline(key, cfg, r.log)
	if err != nil {
		return nil, err
	}
	r.pipelines[key] = p
	r.log.Info("pipeline created", logger.Fields(logger.FieldDependency, key))
	return p, nil
}

// Pipeline returns the pipeline for key, creating it with the registry's
// default config when absent.
func (r *Registry) Pipeline(key string) (*Pipeline, error) {
	return r.GetOrCreate(key, r.defaults)
}

// Get returns the pipeline for key without creating one.
func (r *Registry) Get(key string) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[key]
	return p, ok
}

// Keys returns the registered dependency keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.pipelines))
	for k := range r.pipelines {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a read-only health view of every pipeline, suitable for
// export as gauges by a monitoring collector.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	pipelines := make([]*Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		pipelines = append(pipelines, p)
	}
	r.mu.RUnlock()

	// Per-pipeline stats take per-breaker locks; collect them outside the
	// registry lock.
	out := make(map[string]Stats, len(pipelines))
	for _, p := range pipelines {
		out[p.Key()] = p.Stats()
	}
	return out
}

// Reset recreates the pipeline for key from scratch: fresh circuit breaker,
// empty bulkhead, same configuration. Used for manual recovery and test
// isolation. Resetting an unknown key is an error.
func (r *Registry) Reset(key string) error {
	return r.resetWith(key, nil)
}

// ResetWith recreates the pipeline for key with a new configuration. This
// is the explicit reconfiguration path that GetOrCreate's first-writer-wins
// rule points to.
func (r *Registry) ResetWith(key string, cfg Config) error {
	return r.resetWith(key, &cfg)
}

func (r *Registry) resetWith(key string, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.pipelines[key]
	if !ok {
		return fmt.Errorf("no pipeline registered for key %q", key)
	}

	next := existing.ConfigSnapshot()
	if cfg != nil {
		next = *cfg
	}
	p, err := NewPipeline(key, next, r.log)
	if err != nil {
		return err
	}
	r.pipelines[key] = p
	r.log.Info("pipeline reset", logger.Fields(logger.FieldDependency, key))
	return nil
}

// Remove drops the pipeline for key. In-flight executions keep their
// references and drain against the removed pipeline.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipelines, key)
}
