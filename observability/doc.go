// Package observability exports pipeline health as OpenTelemetry metrics.
//
// Two pieces cooperate: InitMeter bootstraps an OTLP meter provider, and
// Collector registers observable gauges that read a registry snapshot on
// every export cycle. Per-execution counters live on Recorder for callers
// that want outcome and latency series in addition to the health gauges.
package observability
