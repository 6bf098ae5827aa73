package alert

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/model"
)

// maxHistoryLen bounds the retained fired/resolved alert history.
const maxHistoryLen = 200

// state is the mutable per-kind record. Owned exclusively by the Engine and
// mutated only inside Evaluate.
type state struct {
	phase           Phase
	severity        Severity
	lastTriggered   time.Time
	lastDispatched  time.Time
	lastResolveSent time.Time
	lastValue       float64
	suppressed      int
}

// Engine evaluates every alert kind against each tick's snapshot and decides
// which notifications to hand to the dispatcher.
//
// Ticks run sequentially, but rule hot-reloads and status readers arrive
// concurrently, so all state is mutex-guarded.
type Engine struct {
	mu              sync.Mutex
	rules           map[Kind]config.Rule
	defaultThrottle time.Duration
	resolveThrottle time.Duration
	states          map[Kind]*state
	history         []Alert
}

// NewEngine creates an Engine from validated alert configuration.
func NewEngine(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		defaultThrottle: cfg.DefaultThrottle,
		resolveThrottle: cfg.ResolveThrottle,
		states:          make(map[Kind]*state, len(Kinds)),
	}
	e.setRules(cfg)
	for _, k := range Kinds {
		e.states[k] = &state{}
	}
	return e
}

// UpdateRules swaps in reloaded thresholds. In-flight alert state is kept:
// an already-firing alert re-evaluates against the new thresholds on the
// next tick.
func (e *Engine) UpdateRules(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultThrottle = cfg.DefaultThrottle
	e.resolveThrottle = cfg.ResolveThrottle
	e.setRules(cfg)
}

func (e *Engine) setRules(cfg config.AlertsConfig) {
	rules := make(map[Kind]config.Rule, len(cfg.Rules))
	for name, rule := range cfg.Rules {
		rules[Kind(name)] = rule
	}
	e.rules = rules
}

// Evaluate runs one tick of the state machine for every kind and returns the
// alerts to dispatch: zero or more firing notifications plus zero or more
// resolutions. now is passed explicitly so tests control the clock.
func (e *Engine) Evaluate(snap *model.MetricsSnapshot, now time.Time) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Alert
	for _, kind := range Kinds {
		rule, ok := e.rules[kind]
		if !ok {
			continue
		}
		value, available := kindValue(kind, snap)
		if !available {
			// Collector failed this tick — hold the current phase rather
			// than resolving on missing data.
			continue
		}

		st := e.states[kind]
		sev, breached := breachSeverity(kind, rule, value)

		switch {
		case breached:
			st.lastTriggered = now
			st.severity = sev
			st.lastValue = value
			throttle := rule.Throttle
			if throttle <= 0 {
				throttle = e.defaultThrottle
			}
			if st.lastDispatched.IsZero() || now.Sub(st.lastDispatched) >= throttle {
				a := Alert{
					Kind:            kind,
					Severity:        sev,
					Value:           value,
					Threshold:       thresholdFor(rule, sev),
					Timestamp:       now,
					SuppressedCount: st.suppressed,
					Snapshot:        snap,
				}
				a.Message = formatMessage(kind, sev, value, a.Threshold, st.suppressed)
				st.phase = PhaseDispatched
				st.lastDispatched = now
				st.suppressed = 0
				e.appendHistory(a)
				out = append(out, a)
				slog.Warn("alert fired",
					"kind", kind, "severity", sev, "value", value)
			} else {
				st.phase = PhaseSuppressed
				st.suppressed++
				slog.Debug("alert suppressed by throttle",
					"kind", kind, "suppressed", st.suppressed)
			}

		case cleared(kind, rule, value) && st.phase != PhaseInactive:
			// Passes through Resolved on the way back to Inactive; the
			// resolution notification itself is throttled independently.
			st.phase = PhaseResolved
			res := Alert{
				Kind:      kind,
				Severity:  SeverityInfo,
				Message:   formatResolved(kind, value),
				Value:     value,
				Threshold: rule.Clear,
				Timestamp: now,
				Resolved:  true,
				Snapshot:  snap,
			}
			if st.lastResolveSent.IsZero() || now.Sub(st.lastResolveSent) >= e.resolveThrottle {
				st.lastResolveSent = now
				e.appendHistory(res)
				out = append(out, res)
			}
			slog.Info("alert resolved", "kind", kind, "value", value)
			st.phase = PhaseInactive
			st.severity = ""
			st.suppressed = 0

		default:
			// In the hysteresis band (or still inactive) — hold.
		}
	}
	return out
}

// Active returns a copy of every currently-firing alert, rebuilt from the
// per-kind state. Order follows Kinds.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Alert
	for _, kind := range Kinds {
		st := e.states[kind]
		if st.phase == PhaseDispatched || st.phase == PhaseSuppressed || st.phase == PhaseActive {
			rule := e.rules[kind]
			out = append(out, Alert{
				Kind:            kind,
				Severity:        st.severity,
				Message:         formatMessage(kind, st.severity, st.lastValue, thresholdFor(rule, st.severity), 0),
				Value:           st.lastValue,
				Threshold:       thresholdFor(rule, st.severity),
				Timestamp:       st.lastTriggered,
				SuppressedCount: st.suppressed,
			})
		}
	}
	return out
}

// History returns up to limit recent fired/resolved alerts, newest last.
// limit <= 0 returns the full retained history.
func (e *Engine) History(limit int) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, n)
	copy(out, e.history[len(e.history)-n:])
	return out
}

// Phase reports the current state-machine phase for a kind. Intended for
// tests and diagnostics.
func (e *Engine) Phase(kind Kind) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[kind].phase
}

func (e *Engine) appendHistory(a Alert) {
	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
}

// kindValue extracts the metric feeding a kind from the snapshot.
// For oom_prediction the value is the projected seconds to exhaustion, with
// +Inf standing in for "no prediction" so the threshold comparisons below
// fall out naturally; availability tracks the heap metric.
func kindValue(kind Kind, snap *model.MetricsSnapshot) (float64, bool) {
	switch kind {
	case KindHeapCritical:
		return snap.HeapUsedPct.Value, snap.HeapUsedPct.Valid
	case KindOldGenHigh:
		return snap.OldGenUsedPct.Value, snap.OldGenUsedPct.Valid
	case KindOOMPrediction:
		if !snap.HeapUsedPct.Valid {
			return 0, false
		}
		if snap.OOMPrediction == nil {
			return math.Inf(1), true
		}
		return snap.OOMPrediction.ETA.Seconds(), true
	case KindStuckThreads:
		return snap.StuckThreads.Value, snap.StuckThreads.Valid
	case KindThreadPool:
		return snap.ThreadPoolUtilPct.Value, snap.ThreadPoolUtilPct.Valid
	case KindCPUHigh:
		return snap.CPUPct.Value, snap.CPUPct.Valid
	case KindMemHigh:
		return snap.MemPct.Value, snap.MemPct.Valid
	default:
		return 0, false
	}
}

// breachSeverity classifies a value against the rule's trigger thresholds.
// oom_prediction inverts: a shorter projected runway is worse.
func breachSeverity(kind Kind, rule config.Rule, value float64) (Severity, bool) {
	if kind == KindOOMPrediction {
		switch {
		case value <= rule.Critical:
			return SeverityCritical, true
		case value <= rule.Warn:
			return SeverityWarning, true
		default:
			return "", false
		}
	}
	switch {
	case value >= rule.Critical:
		return SeverityCritical, true
	case value >= rule.Warn:
		return SeverityWarning, true
	default:
		return "", false
	}
}

// cleared reports whether value sits past the hysteresis clear threshold.
func cleared(kind Kind, rule config.Rule, value float64) bool {
	if kind == KindOOMPrediction {
		return value > rule.Clear
	}
	return value < rule.Clear
}

// thresholdFor picks the threshold that matches the severity actually fired.
func thresholdFor(rule config.Rule, sev Severity) float64 {
	if sev == SeverityCritical {
		return rule.Critical
	}
	return rule.Warn
}
