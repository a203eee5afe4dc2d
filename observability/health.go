package observability

import (
	"fmt"

	"github.com/bulwarkkit/bulwark/resilience"
)

// HealthStatus maps circuit state onto the usual health vocabulary.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// Health describes the health of one protected dependency.
type Health struct {
	Dependency string            `json:"dependency"`
	Status     HealthStatus      `json:"status"`
	Message    string            `json:"message,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// ServiceHealth aggregates per-dependency health into one report, suitable
// as a health endpoint payload.
type ServiceHealth struct {
	Service      string       `json:"service"`
	Status       HealthStatus `json:"status"`
	Dependencies []Health     `json:"dependencies,omitempty"`
}

// HealthOf translates one pipeline snapshot: closed is up, open is down,
// half-open is degraded (probes in flight, verdict pending).
func HealthOf(stats resilience.Stats) Health {
	h := Health{
		Dependency: stats.Key,
		Details: map[string]string{
			"circuit_state": stats.StateName,
			"in_use":        fmt.Sprintf("%d/%d", stats.InUse, stats.Capacity),
			"waiting":       fmt.Sprintf("%d", stats.Waiting),
			"failure_rate":  fmt.Sprintf("%.2f", stats.FailureRate),
		},
	}
	switch stats.CircuitState {
	case resilience.StateOpen:
		h.Status = HealthStatusDown
		h.Message = "circuit open, failing fast"
	case resilience.StateHalfOpen:
		h.Status = HealthStatusDegraded
		h.Message = "probing for recovery"
	default:
		h.Status = HealthStatusUp
	}
	return h
}

// ServiceHealthOf builds the aggregate report from a registry: the overall
// status is the worst dependency status.
func ServiceHealthOf(service string, reg *resilience.Registry) *ServiceHealth {
	sh := &ServiceHealth{Service: service, Status: HealthStatusUp}
	for _, stats := range reg.Snapshot() {
		sh.add(HealthOf(stats))
	}
	return sh
}

func (sh *ServiceHealth) add(h Health) {
	sh.Dependencies = append(sh.Dependencies, h)
	switch h.Status {
	case HealthStatusDown:
		sh.Status = HealthStatusDown
	case HealthStatusDegraded:
		if sh.Status != HealthStatusDown {
			sh.Status = HealthStatusDegraded
		}
	}
}
