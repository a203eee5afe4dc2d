// Package validation checks configuration structs before pipelines are
// built from them.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Tag validation covers
// per-field ranges; the fluent Validator handles cross-field rules tags
// cannot express.
//
// # Struct Tag Validation
//
//	type Config struct {
//	    FailureThreshold float64 `validate:"gt=0,lte=1"`
//	    MaxConcurrent    int     `validate:"min=1"`
//	}
//	err := validation.Struct(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Custom(cfg.BaseDelay <= cfg.MaxDelay, "base_delay", "must not exceed max_delay")
//	err := v.Err()
package validation
