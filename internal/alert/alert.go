package alert

import (
	"fmt"
	"time"

	"github.com/serverpulse/serverpulse/internal/model"
)

// Kind identifies one monitored alert condition.
type Kind string

// The closed set of alert kinds. Matches config.AlertKinds.
const (
	KindHeapCritical  Kind = "heap_critical"
	KindOldGenHigh    Kind = "oldgen_high"
	KindOOMPrediction Kind = "oom_prediction"
	KindStuckThreads  Kind = "stuck_threads"
	KindThreadPool    Kind = "threadpool_saturation"
	KindCPUHigh       Kind = "cpu_high"
	KindMemHigh       Kind = "mem_high"
)

// Kinds lists every alert kind in evaluation order.
var Kinds = []Kind{
	KindHeapCritical,
	KindOldGenHigh,
	KindOOMPrediction,
	KindStuckThreads,
	KindThreadPool,
	KindCPUHigh,
	KindMemHigh,
}

// Severity of a dispatched alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Phase is the state-machine position of one alert kind.
type Phase int

const (
	// PhaseInactive — the metric is below its trigger thresholds.
	PhaseInactive Phase = iota
	// PhaseActive — the metric breached this tick; transient within one
	// evaluation before settling into Dispatched or Suppressed.
	PhaseActive
	// PhaseDispatched — the latest breach produced a notification.
	PhaseDispatched
	// PhaseSuppressed — the latest breach was swallowed by the throttle.
	PhaseSuppressed
	// PhaseResolved — the metric fell below the clear threshold; transient
	// before returning to Inactive.
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseActive:
		return "active"
	case PhaseDispatched:
		return "dispatched"
	case PhaseSuppressed:
		return "suppressed"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Alert is one dispatch-ready notification. Immutable once constructed.
type Alert struct {
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`

	// SuppressedCount is how many breaches the throttle swallowed since
	// the previous dispatch of this kind.
	SuppressedCount int `json:"suppressed_count,omitempty"`

	// Resolved marks the informational "condition cleared" event.
	Resolved bool `json:"resolved,omitempty"`

	// Snapshot is the metrics snapshot the alert was evaluated against.
	// Excluded from JSON — API consumers fetch the snapshot separately.
	Snapshot *model.MetricsSnapshot `json:"-"`
}

// title returns the human-readable condition name for a kind.
func (k Kind) title() string {
	switch k {
	case KindHeapCritical:
		return "heap usage"
	case KindOldGenHigh:
		return "OldGen usage"
	case KindOOMPrediction:
		return "OOM prediction"
	case KindStuckThreads:
		return "stuck threads"
	case KindThreadPool:
		return "thread pool utilization"
	case KindCPUHigh:
		return "CPU usage"
	case KindMemHigh:
		return "memory usage"
	default:
		return string(k)
	}
}

// formatMessage renders the operator-facing message for a firing alert.
func formatMessage(kind Kind, sev Severity, value, threshold float64, suppressed int) string {
	var body string
	switch kind {
	case KindOOMPrediction:
		body = fmt.Sprintf("out of memory projected in %.1f minutes (alert threshold %.0f minutes)",
			value/60, threshold/60)
	case KindStuckThreads:
		body = fmt.Sprintf("%d threads stuck or blocked (threshold %d)", int(value), int(threshold))
	default:
		body = fmt.Sprintf("%s at %.1f%% (threshold %.1f%%)", kind.title(), value, threshold)
	}
	msg := fmt.Sprintf("[%s] %s", sev, body)
	if suppressed > 0 {
		msg += fmt.Sprintf(" — %d occurrences suppressed since last notice", suppressed)
	}
	return msg
}

// formatResolved renders the informational resolution message.
func formatResolved(kind Kind, value float64) string {
	if kind == KindOOMPrediction {
		return "[info] OOM prediction cleared — heap growth no longer projects exhaustion"
	}
	return fmt.Sprintf("[info] %s recovered (now %.1f)", kind.title(), value)
}
