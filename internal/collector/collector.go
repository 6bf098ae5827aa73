package collector

import (
	"context"
	"errors"

	"github.com/serverpulse/serverpulse/internal/model"
)

// Error kinds the coordinator distinguishes when a source fails.
// Matched with errors.Is; collectors wrap them with source-specific detail.
var (
	// ErrUnavailable — the source could not be read at all (connection
	// refused, file missing, parse failure). The source's whole field
	// group goes unavailable for the tick.
	ErrUnavailable = errors.New("source unavailable")

	// ErrTimeout — the bounded per-source deadline elapsed. Same
	// degradation as ErrUnavailable, logged distinctly.
	ErrTimeout = errors.New("collect timed out")
)

// Fields is one collector's contribution to the tick's MetricsSnapshot.
// Only the fields a collector produces are valid; the coordinator merges
// every valid field from every source into the snapshot.
type Fields struct {
	HeapUsedPct       model.Metric
	OldGenUsedPct     model.Metric
	ThreadPoolUtilPct model.Metric
	StuckThreads      model.Metric

	CPUPct       model.Metric
	MemPct       model.Metric
	DiskPct      model.Metric
	ProcessCount model.Metric

	RequestCount     model.Metric
	SlowRequestCount model.Metric
	AvgResponseMs    model.Metric
	MaxResponseMs    model.Metric
}

// Collector is the capability interface every metric source implements.
type Collector interface {
	// Name identifies the source in logs and telemetry.
	Name() string

	// Collect gathers this source's fields. It must honor ctx cancellation
	// and return partial Fields plus an error when the source degrades;
	// fields left invalid are simply absent from the tick's snapshot.
	Collect(ctx context.Context) (Fields, error)
}

// Merge copies every valid field from f into snap. Later sources win on
// overlap, which lets the optional PromQL source override /proc readings.
func Merge(snap *model.MetricsSnapshot, f Fields) {
	mergeMetric(&snap.HeapUsedPct, f.HeapUsedPct)
	mergeMetric(&snap.OldGenUsedPct, f.OldGenUsedPct)
	mergeMetric(&snap.ThreadPoolUtilPct, f.ThreadPoolUtilPct)
	mergeMetric(&snap.StuckThreads, f.StuckThreads)
	mergeMetric(&snap.CPUPct, f.CPUPct)
	mergeMetric(&snap.MemPct, f.MemPct)
	mergeMetric(&snap.DiskPct, f.DiskPct)
	mergeMetric(&snap.ProcessCount, f.ProcessCount)
	mergeMetric(&snap.RequestCount, f.RequestCount)
	mergeMetric(&snap.SlowRequestCount, f.SlowRequestCount)
	mergeMetric(&snap.AvgResponseMs, f.AvgResponseMs)
	mergeMetric(&snap.MaxResponseMs, f.MaxResponseMs)
}

func mergeMetric(dst *model.Metric, src model.Metric) {
	if src.Valid {
		*dst = src
	}
}
