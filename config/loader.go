package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix marks the environment variables the loader reads.
const envPrefix = "BULWARK_"

// FileSystem abstracts file probing so tests can stub the search.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem against the OS.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderConfig holds the loader's dependencies and file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path, skipping the search.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path, skipping the search.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load reads bulwark.yml plus BULWARK_-prefixed environment variables into
// a File, applies defaults, and validates the result. A missing config file
// is not an error: the environment alone can configure everything.
func Load(opts ...LoaderOption) (*File, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}
	if lc.ConfigFile == "" {
		lc.ConfigFile = findFile(lc.FileSystem, "bulwark.yml")
	}
	if lc.EnvFile == "" {
		lc.EnvFile = findFile(lc.FileSystem, ".env")
	}

	v := viper.New()

	if lc.ConfigFile != "" && lc.FileSystem.Exists(lc.ConfigFile) {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", lc.ConfigFile, err)
		}
	}

	if lc.EnvFile != "" && lc.FileSystem.Exists(lc.EnvFile) {
		if err := lc.FileSystem.LoadEnv(lc.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", lc.EnvFile, err)
		}
	}
	bindEnvVars(v)

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// findFile probes the standard locations for name.
func findFile(fs FileSystem, name string) string {
	searchPaths := []string{
		"./" + name,
		"./config/" + name,
		"../" + name,
		"../config/" + name,
	}
	for _, path := range searchPaths {
		if fs.Exists(path) {
			return path
		}
	}
	return ""
}

// pipelineFieldTags are the tunable names accepted in per-dependency env
// overrides. They disambiguate where the dependency key ends and the field
// name begins in BULWARK_DEPENDENCIES_<KEY>_<FIELD>.
var pipelineFieldTags = map[string]bool{
	"failure_threshold":    true,
	"rolling_window_size":  true,
	"minimum_calls":        true,
	"open_duration":        true,
	"half_open_max_probes": true,
	"half_open_successes":  true,
	"max_concurrent":       true,
	"max_queue_size":       true,
	"queue_wait":           true,
	"max_attempts":         true,
	"backoff":              true,
	"base_delay":           true,
	"max_delay":            true,
	"max_elapsed":          true,
	"default_timeout":      true,
	"requests_per_second":  true,
	"burst":                true,
}

// bindEnvVars copies BULWARK_-prefixed environment variables into viper
// under the matching nested keys, so BULWARK_DEFAULTS_MAX_ATTEMPTS reaches
// defaults.max_attempts without per-field BindEnv calls.
func bindEnvVars(v *viper.Viper) {
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], envPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(pair[0], envPrefix))
		parts := strings.Split(key, "_")
		if len(parts) <= 1 {
			v.Set(key, pair[1])
			continue
		}
		if parts[0] == "dependencies" {
			// Dependencies is a map keyed by caller-chosen names which may
			// themselves contain underscores. Split at a known field tag so
			// DEPENDENCIES_USER_SERVICE_MAX_ATTEMPTS resolves to key
			// "user_service", field "max_attempts".
			for j := 2; j < len(parts); j++ {
				field := strings.Join(parts[j:], "_")
				if pipelineFieldTags[field] {
					v.Set("dependencies."+strings.Join(parts[1:j], "_")+"."+field, pair[1])
				}
			}
			continue
		}
		v.Set(parts[0]+"."+strings.Join(parts[1:], "_"), pair[1])
	}
}
