// Package config loads pipeline configuration from a bulwark.yml file and
// the environment.
//
// A file carries one defaults block plus per-dependency overrides:
//
//	logging:
//	  level: info
//	  format: json
//	defaults:
//	  failure_threshold: 0.5
//	  max_concurrent: 10
//	dependencies:
//	  payments:
//	    max_concurrent: 2
//	    default_timeout: 200ms
//
// Environment variables prefixed with BULWARK_ override file values, e.g.
// BULWARK_DEFAULTS_MAX_ATTEMPTS=5 or
// BULWARK_DEPENDENCIES_PAYMENTS_MAX_CONCURRENT=4. A .env file next to the
// config file is loaded first when present.
package config
