package config

import (
	"fmt"
	"sort"

	"github.com/bulwarkkit/bulwark/logger"
	"github.com/bulwarkkit/bulwark/resilience"
)

// File is the unmarshalled shape of bulwark.yml.
type File struct {
	Logging      logger.Config                `yaml:"logging" mapstructure:"logging"`
	Defaults     resilience.Config            `yaml:"defaults" mapstructure:"defaults"`
	Dependencies map[string]resilience.Config `yaml:"dependencies" mapstructure:"dependencies"`
}

// ApplyDefaults fills zero-valued fields of the defaults block and the
// logging section. Per-dependency blocks are left sparse; Merged resolves
// them against the defaults.
func (f *File) ApplyDefaults() {
	f.Logging.ApplyDefaults()
	f.Defaults.ApplyDefaults()
}

// Validate checks the logging section, the defaults block, and every
// dependency block after merging.
func (f *File) Validate() error {
	if err := f.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := f.Defaults.Validate("defaults"); err != nil {
		return err
	}
	for _, key := range f.Keys() {
		if err := f.Merged(key).Validate(key); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the configured dependency keys in stable order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.Dependencies))
	for k := range f.Dependencies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merged resolves the configuration for one dependency key: the defaults
// block overlaid with the key's explicit values. A zero-valued field in the
// dependency block inherits from defaults; set the value in the defaults
// block to change it fleet-wide.
func (f *File) Merged(key string) resilience.Config {
	merged := f.Defaults
	merged.ApplyDefaults()

	override, ok := f.Dependencies[key]
	if !ok {
		return merged
	}

	if override.FailureThreshold > 0 {
		merged.FailureThreshold = override.FailureThreshold
	}
	if override.RollingWindowSize > 0 {
		merged.RollingWindowSize = override.RollingWindowSize
		if override.MinimumCalls <= 0 {
			merged.MinimumCalls = override.RollingWindowSize
		}
	}
	if override.MinimumCalls > 0 {
		merged.MinimumCalls = override.MinimumCalls
	}
	if override.OpenDuration > 0 {
		merged.OpenDuration = override.OpenDuration
	}
	if override.HalfOpenMaxProbes > 0 {
		merged.HalfOpenMaxProbes = override.HalfOpenMaxProbes
	}
	if override.HalfOpenSuccesses > 0 {
		merged.HalfOpenSuccesses = override.HalfOpenSuccesses
	}
	if override.MaxConcurrent > 0 {
		merged.MaxConcurrent = override.MaxConcurrent
	}
	if override.MaxQueueSize > 0 {
		merged.MaxQueueSize = override.MaxQueueSize
	}
	if override.QueueWait > 0 {
		merged.QueueWait = override.QueueWait
	}
	if override.MaxAttempts > 0 {
		merged.MaxAttempts = override.MaxAttempts
	}
	if override.Backoff != "" {
		merged.Backoff = override.Backoff
	}
	if override.BaseDelay > 0 {
		merged.BaseDelay = override.BaseDelay
	}
	if override.MaxDelay > 0 {
		merged.MaxDelay = override.MaxDelay
	}
	if override.MaxElapsed > 0 {
		merged.MaxElapsed = override.MaxElapsed
	}
	if override.DefaultTimeout > 0 {
		merged.DefaultTimeout = override.DefaultTimeout
	}
	if override.RequestsPerSecond > 0 {
		merged.RequestsPerSecond = override.RequestsPerSecond
		if override.Burst > 0 {
			merged.Burst = override.Burst
		} else {
			merged.Burst = int(override.RequestsPerSecond)
		}
	}
	return merged
}

// Apply seeds reg with a pipeline per configured dependency key. Keys the
// registry already holds keep their existing pipeline.
func (f *File) Apply(reg *resilience.Registry) error {
	for _, key := range f.Keys() {
		if _, err := reg.GetOrCreate(key, f.Merged(key)); err != nil {
			return err
		}
	}
	return nil
}

// Registry builds a registry from the file: the defaults block becomes the
// registry default config and every dependency block is seeded eagerly, so
// misconfiguration surfaces at startup rather than on first call.
func (f *File) Registry(log *logger.Logger) (*resilience.Registry, error) {
	reg := resilience.NewRegistry(
		resilience.WithLogger(log),
		resilience.WithDefaults(f.Merged("")),
	)
	if err := f.Apply(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
