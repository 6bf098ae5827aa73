package model

import (
	"encoding/json"
	"time"
)

// Metric is one sampled value that may be unavailable for a tick.
// A zero Metric is "unavailable"; use Sampled to construct a valid one.
// Unavailable metrics serialize as JSON null so API consumers can tell
// "collector failed" apart from a legitimate zero reading.
type Metric struct {
	Value float64
	Valid bool
}

// Sampled returns a valid Metric holding v.
func Sampled(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// MarshalJSON renders the value, or null when the metric is unavailable.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts either a number or null.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}
	if err := json.Unmarshal(data, &m.Value); err != nil {
		return err
	}
	m.Valid = true
	return nil
}

// MetricsSnapshot is one tick's complete set of collected metrics, merged
// from all collector outputs. Any field may be unavailable if its collector
// failed that tick. Immutable after the coordinator publishes it.
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// JVM-derived fields. All four go unavailable together when the
	// JVM collector cannot reach its endpoint.
	HeapUsedPct       Metric `json:"heap_used_pct"`
	OldGenUsedPct     Metric `json:"oldgen_used_pct"`
	ThreadPoolUtilPct Metric `json:"thread_pool_util_pct"`
	StuckThreads      Metric `json:"stuck_thread_count"`

	// OS-derived fields.
	CPUPct       Metric `json:"cpu_pct"`
	MemPct       Metric `json:"mem_pct"`
	DiskPct      Metric `json:"disk_pct"`
	ProcessCount Metric `json:"process_count"`

	// Access-log-derived fields.
	RequestCount     Metric `json:"request_count"`
	SlowRequestCount Metric `json:"slow_request_count"`
	AvgResponseMs    Metric `json:"avg_response_ms"`
	MaxResponseMs    Metric `json:"max_response_ms"`

	// OOMPrediction is derived from the heap trend after collection.
	// Nil when no out-of-memory condition is projected — flat or shrinking
	// heap, not enough history, or a projection beyond the horizon.
	OOMPrediction *OOMPrediction `json:"oom_prediction,omitempty"`
}

// HeapTrendPoint is one retained heap-usage sample.
type HeapTrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	HeapUsedPct float64   `json:"heap_used_pct"`
}

// OOMPrediction is the projected out-of-memory condition from the heap trend.
type OOMPrediction struct {
	// ETA is the projected time until heap usage reaches 100%.
	ETA time.Duration `json:"eta_seconds"`

	// GrowthPctPerMin is the fitted heap growth rate.
	GrowthPctPerMin float64 `json:"growth_pct_per_min"`

	// CurrentPct is the (smoothed) usage the projection starts from.
	CurrentPct float64 `json:"current_pct"`
}

// MarshalJSON emits ETA in whole seconds rather than nanoseconds.
func (p OOMPrediction) MarshalJSON() ([]byte, error) {
	type out struct {
		ETASeconds      float64 `json:"eta_seconds"`
		GrowthPctPerMin float64 `json:"growth_pct_per_min"`
		CurrentPct      float64 `json:"current_pct"`
	}
	return json.Marshal(out{
		ETASeconds:      p.ETA.Seconds(),
		GrowthPctPerMin: p.GrowthPctPerMin,
		CurrentPct:      p.CurrentPct,
	})
}

// Health status labels derived from the overall score.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
	StatusUnknown  = "unknown"
)

// HealthScore is the composite health assessment for one tick.
// Replaced atomically as a whole — never partially updated.
type HealthScore struct {
	// Overall is the weighted composite score, clamped to [0, 100].
	Overall float64 `json:"overall"`

	// Components maps component name (heap, thread_pool, cpu, memory,
	// stuck_threads) to its individual 0–100 score. Components whose raw
	// metric was unavailable are absent from the map.
	Components map[string]float64 `json:"components"`

	// Status is the band label derived from Overall, or "unknown" when no
	// component could be scored.
	Status string `json:"status"`

	ComputedAt time.Time `json:"computed_at"`
}
