package score

import (
	"time"

	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/model"
)

// componentRule maps each score component to the alert rule whose warn and
// critical thresholds shape its piecewise-linear curve.
var componentRule = map[string]string{
	"heap":        "heap_critical",
	"thread_pool": "threadpool_saturation",
	"cpu":         "cpu_high",
	"memory":      "mem_high",
}

// Scorer computes composite health scores from metric snapshots.
// A Scorer is immutable after construction; config reloads build a new one.
type Scorer struct {
	weights  map[string]float64
	rules    map[string]config.Rule
	bands    config.BandsConfig
	stuckCap int
	now      func() time.Time // injectable for deterministic tests
}

// New builds a Scorer from validated configuration. The caller guarantees
// weights sum to 1.0 and every rule has warn < critical.
func New(health config.HealthConfig, rules map[string]config.Rule) *Scorer {
	return &Scorer{
		weights:  health.Weights,
		rules:    rules,
		bands:    health.Bands,
		stuckCap: health.StuckThreadCap,
		now:      time.Now,
	}
}

// Score derives the composite HealthScore for snap.
//
// Unavailable metrics are excluded and the remaining weights renormalized
// proportionally. When no component can be scored at all the status is
// "unknown" with an overall score of 0.
func (s *Scorer) Score(snap *model.MetricsSnapshot) model.HealthScore {
	components := make(map[string]float64, len(s.weights))
	var weighted, weightSum float64

	for name, weight := range s.weights {
		value, ok := componentValue(name, snap)
		if !ok {
			continue
		}
		var sc float64
		if name == "stuck_threads" {
			sc = s.stuckScore(value)
		} else {
			rule := s.rules[componentRule[name]]
			sc = Piecewise(value, rule.Warn, rule.Critical)
		}
		components[name] = sc
		weighted += sc * weight
		weightSum += weight
	}

	if weightSum == 0 {
		return model.HealthScore{
			Components: components,
			Status:     model.StatusUnknown,
			ComputedAt: s.now(),
		}
	}

	overall := clamp(weighted/weightSum, 0, 100)
	return model.HealthScore{
		Overall:    overall,
		Components: components,
		Status:     s.statusFor(overall),
		ComputedAt: s.now(),
	}
}

// componentValue pulls the raw metric feeding the named component.
func componentValue(name string, snap *model.MetricsSnapshot) (float64, bool) {
	var m model.Metric
	switch name {
	case "heap":
		m = snap.HeapUsedPct
	case "thread_pool":
		m = snap.ThreadPoolUtilPct
	case "cpu":
		m = snap.CPUPct
	case "memory":
		m = snap.MemPct
	case "stuck_threads":
		m = snap.StuckThreads
	}
	return m.Value, m.Valid
}

// Piecewise scores a value against a warn/critical pair: 100 at or below
// warn, 0 at or above critical, linear in between.
func Piecewise(value, warn, critical float64) float64 {
	switch {
	case value <= warn:
		return 100
	case value >= critical:
		return 0
	default:
		return 100 * (critical - value) / (critical - warn)
	}
}

// stuckScore is the step function for the stuck-thread count: 100 at zero,
// dropping linearly per additional stuck thread to 0 at the configured cap.
func (s *Scorer) stuckScore(count float64) float64 {
	if count <= 0 {
		return 100
	}
	if count >= float64(s.stuckCap) {
		return 0
	}
	return clamp(100*(1-count/float64(s.stuckCap)), 0, 100)
}

// statusFor maps an overall score to its configured band label.
func (s *Scorer) statusFor(overall float64) string {
	switch {
	case overall >= s.bands.Healthy:
		return model.StatusHealthy
	case overall >= s.bands.Warning:
		return model.StatusWarning
	default:
		return model.StatusCritical
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
