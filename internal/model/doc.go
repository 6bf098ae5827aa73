// Package model defines the shared in-memory types that flow through the
// monitoring pipeline: the per-tick MetricsSnapshot, heap trend points, the
// composite HealthScore, and the OOM prediction derived from the heap trend.
// All types are plain values — once a snapshot is built for a tick it is
// never mutated, so readers can hold references across ticks safely.
package model
