package logger

import "time"

// Standard field key constants for structured logging.
const (
	FieldComponent   = "component"
	FieldDependency  = "dependency"
	FieldExecutionID = "execution_id"
	FieldState       = "state"
	FieldAttempt     = "attempt"
	FieldDelay       = "delay_ms"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
	FieldReason      = "reason"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Info("tripped", logger.Fields("dependency", "openai", "failures", 4))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for a failed call against a dependency.
func ErrorFields(dependency string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldDependency: dependency,
		FieldError:      err.Error(),
	}
}

// DurationFields creates fields for a timed call against a dependency.
func DurationFields(dependency string, d time.Duration) map[string]interface{} {
	return map[string]interface{}{
		FieldDependency: dependency,
		FieldDuration:   d.Milliseconds(),
	}
}
