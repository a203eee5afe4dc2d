package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bulwarkkit/bulwark/faults"
	"github.com/bulwarkkit/bulwark/resilience"
)

// AttrDependency labels every series with the dependency key.
const AttrDependency = "dependency"

// Collector exports the health of every pipeline in a registry as
// observable gauges. Values are read from a registry snapshot on each
// export cycle, so the pipelines carry no instrumentation of their own.
type Collector struct {
	registration metric.Registration
}

// NewCollector registers the gauge callback on meter. Close unregisters it.
func NewCollector(meter metric.Meter, reg *resilience.Registry) (*Collector, error) {
	circuitState, err := meter.Int64ObservableGauge("bulwark.circuit.state",
		metric.WithDescription("Circuit state (0 closed, 1 open, 2 half-open)"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating circuit state gauge: %w", err)
	}

	inUse, err := meter.Int64ObservableGauge("bulwark.bulkhead.in_use",
		metric.WithDescription("Concurrent executions holding a bulkhead slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bulkhead in-use gauge: %w", err)
	}

	waiting, err := meter.Int64ObservableGauge("bulwark.bulkhead.waiting",
		metric.WithDescription("Callers queued for a bulkhead slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bulkhead waiting gauge: %w", err)
	}

	failureRate, err := meter.Float64ObservableGauge("bulwark.failure.rate",
		metric.WithDescription("Failure ratio over the rolling outcome window"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failure rate gauge: %w", err)
	}

	windowCalls, err := meter.Int64ObservableGauge("bulwark.window.calls",
		metric.WithDescription("Outcomes recorded in the rolling window"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating window calls gauge: %w", err)
	}

	registration, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			for key, stats := range reg.Snapshot() {
				attrs := metric.WithAttributes(attribute.String(AttrDependency, key))
				o.ObserveInt64(circuitState, int64(stats.CircuitState), attrs)
				o.ObserveInt64(inUse, int64(stats.InUse), attrs)
				o.ObserveInt64(waiting, int64(stats.Waiting), attrs)
				o.ObserveFloat64(failureRate, stats.FailureRate, attrs)
				o.ObserveInt64(windowCalls, int64(stats.WindowCalls), attrs)
			}
			return nil
		},
		circuitState, inUse, waiting, failureRate, windowCalls,
	)
	if err != nil {
		return nil, fmt.Errorf("registering gauge callback: %w", err)
	}

	return &Collector{registration: registration}, nil
}

// Close stops exporting.
func (c *Collector) Close() error {
	return c.registration.Unregister()
}

// Recorder holds per-execution instruments for callers that want outcome
// and latency series in addition to the Collector's health gauges.
type Recorder struct {
	executionTotal    metric.Int64Counter
	executionDuration metric.Float64Histogram
	shedTotal         metric.Int64Counter
}

// NewRecorder creates the execution instruments on the given meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	executionTotal, err := meter.Int64Counter("bulwark.execution.total",
		metric.WithDescription("Executions by dependency and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating execution counter: %w", err)
	}

	executionDuration, err := meter.Float64Histogram("bulwark.execution.duration",
		metric.WithDescription("Execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating execution histogram: %w", err)
	}

	shedTotal, err := meter.Int64Counter("bulwark.shed.total",
		metric.WithDescription("Executions rejected before the operation ran"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating shed counter: %w", err)
	}

	return &Recorder{
		executionTotal:    executionTotal,
		executionDuration: executionDuration,
		shedTotal:         shedTotal,
	}, nil
}

// RecordExecution records one finished execution. Rejections that never
// reached the operation additionally count toward the shed series.
func (r *Recorder) RecordExecution(ctx context.Context, dependency string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		if code := faults.CodeOf(err); code != "" {
			outcome = string(code)
		} else {
			outcome = "error"
		}
	}

	attrs := metric.WithAttributes(
		attribute.String(AttrDependency, dependency),
		attribute.String("outcome", outcome),
	)
	r.executionTotal.Add(ctx, 1, attrs)
	r.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrDependency, dependency),
	))

	switch faults.CodeOf(err) {
	case faults.CodeRateLimited, faults.CodeBulkheadRejected,
		faults.CodeBulkheadTimeout, faults.CodeCircuitOpen:
		r.shedTotal.Add(ctx, 1, attrs)
	}
}
