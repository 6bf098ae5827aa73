// Package telemetry holds serverpulse's own Prometheus instrumentation:
// tick timing, per-source collector failures, and alert delivery counters,
// exposed on /metrics alongside the REST API.
package telemetry
