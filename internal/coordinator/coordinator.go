package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/collector"
	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/dispatch"
	"github.com/serverpulse/serverpulse/internal/model"
	"github.com/serverpulse/serverpulse/internal/score"
	"github.com/serverpulse/serverpulse/internal/telemetry"
	"github.com/serverpulse/serverpulse/internal/trend"
)

// Options wires the coordinator's dependencies. Everything is constructed
// in main and passed in fully built.
type Options struct {
	Collectors []collector.Collector

	// AccessLog, when present, also backs the slow-request accessor.
	// It should additionally appear in Collectors.
	AccessLog *collector.AccessLogCollector

	Predictor  *trend.Predictor
	Scorer     *score.Scorer
	Engine     *alert.Engine
	Dispatcher *dispatch.Dispatcher

	// Metrics may be nil to disable self-instrumentation (tests).
	Metrics *telemetry.Metrics

	TickInterval     time.Duration
	CollectorTimeout time.Duration

	// Clock is injectable for deterministic tests. Defaults to time.Now.
	Clock func() time.Time
}

// Coordinator owns the tick pipeline and the latest published state.
// Ticks run strictly sequentially; readers are never blocked by a tick.
type Coordinator struct {
	collectors []collector.Collector
	accessLog  *collector.AccessLogCollector
	predictor  *trend.Predictor
	engine     *alert.Engine
	dispatcher *dispatch.Dispatcher
	metrics    *telemetry.Metrics

	interval         time.Duration
	collectorTimeout time.Duration
	now              func() time.Time

	scorerMu sync.RWMutex
	scorer   *score.Scorer

	store statusStore
}

// New builds a Coordinator from fully constructed parts.
func New(opts Options) *Coordinator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		collectors:       opts.Collectors,
		accessLog:        opts.AccessLog,
		predictor:        opts.Predictor,
		engine:           opts.Engine,
		dispatcher:       opts.Dispatcher,
		metrics:          opts.Metrics,
		interval:         opts.TickInterval,
		collectorTimeout: opts.CollectorTimeout,
		now:              now,
		scorer:           opts.Scorer,
	}
}

// Run executes the tick loop until ctx is cancelled. The first tick runs
// immediately so the API has data without waiting a full interval; the
// stop signal is honored between ticks.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("coordinator: starting",
		"interval", c.interval,
		"collectors", len(c.collectors),
	)

	c.Tick(ctx, c.now())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("coordinator: stopped")
			return
		case t := <-ticker.C:
			c.Tick(ctx, t)
		}
	}
}

// Tick runs one full monitoring cycle against the given wall time.
// Exported so tests drive the pipeline without the scheduler.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) {
	started := time.Now()

	snap := c.collect(ctx, now)

	if snap.HeapUsedPct.Valid {
		c.predictor.Record(now, snap.HeapUsedPct.Value)
	}
	snap.OOMPrediction = c.predictor.Predict()

	c.scorerMu.RLock()
	scorer := c.scorer
	c.scorerMu.RUnlock()
	health := scorer.Score(snap)

	fired := c.engine.Evaluate(snap, now)
	for _, a := range fired {
		if c.metrics != nil && !a.Resolved {
			c.metrics.AlertsFired.WithLabelValues(string(a.Kind), string(a.Severity)).Inc()
		}
		// Delivery runs off the tick path; the dispatcher bounds each
		// channel attempt, so a slow webhook never delays the next tick.
		go c.dispatcher.Dispatch(ctx, a)
	}

	c.store.publish(&Status{
		Snapshot:     snap,
		Health:       health,
		ActiveAlerts: c.engine.Active(),
		GeneratedAt:  now,
	})

	if c.metrics != nil {
		c.metrics.TicksTotal.Inc()
		c.metrics.TickDuration.Observe(time.Since(started).Seconds())
		c.metrics.HealthScore.Set(health.Overall)
	}

	slog.Debug("coordinator: tick complete",
		"status", health.Status,
		"score", health.Overall,
		"alerts_fired", len(fired),
	)
}

// collect polls every collector concurrently, each under its own timeout,
// and merges the successful results in registration order.
func (c *Coordinator) collect(ctx context.Context, now time.Time) *model.MetricsSnapshot {
	snap := &model.MetricsSnapshot{Timestamp: now}
	results := make([]collector.Fields, len(c.collectors))

	var wg sync.WaitGroup
	for i, col := range c.collectors {
		wg.Add(1)
		go func(i int, col collector.Collector) {
			defer wg.Done()

			colCtx, cancel := context.WithTimeout(ctx, c.collectorTimeout)
			defer cancel()

			fields, err := col.Collect(colCtx)
			if err != nil {
				kind := "unavailable"
				if errors.Is(err, collector.ErrTimeout) || errors.Is(colCtx.Err(), context.DeadlineExceeded) {
					kind = "timeout"
				}
				if c.metrics != nil {
					c.metrics.CollectorFailures.WithLabelValues(col.Name(), kind).Inc()
				}
				slog.Warn("coordinator: collector degraded",
					"source", col.Name(), "kind", kind, "err", err)
			}
			// Partial fields from a degraded source still merge; whatever
			// it could not produce stays unavailable.
			results[i] = fields
		}(i, col)
	}
	wg.Wait()

	for _, fields := range results {
		collector.Merge(snap, fields)
	}
	return snap
}

// ApplyConfig swaps in reloaded tunables: scoring weights, thresholds,
// alert rules, and trend parameters. Collector and channel topology changes
// still need a restart.
func (c *Coordinator) ApplyConfig(cfg *config.Config) {
	c.scorerMu.Lock()
	c.scorer = score.New(cfg.Health, cfg.Alerts.Rules)
	c.scorerMu.Unlock()

	c.engine.UpdateRules(cfg.Alerts)
	c.predictor.SetTuning(cfg.Trend.Window, cfg.Trend.Smoothing, cfg.Trend.Horizon)
	slog.Info("coordinator: applied reloaded thresholds and weights")
}

// Status returns the latest published state, or nil before the first tick.
func (c *Coordinator) Status() *Status {
	return c.store.load()
}

// Health returns the latest health score, or an "unknown" placeholder
// before the first tick.
func (c *Coordinator) Health() model.HealthScore {
	if st := c.store.load(); st != nil {
		return st.Health
	}
	return model.HealthScore{Status: model.StatusUnknown}
}

// Alerts returns the currently firing alerts.
func (c *Coordinator) Alerts() []alert.Alert {
	return c.engine.Active()
}

// AlertHistory returns up to limit recent fired/resolved alerts.
func (c *Coordinator) AlertHistory(limit int) []alert.Alert {
	return c.engine.History(limit)
}

// HeapTrend returns the retained heap samples, oldest first.
func (c *Coordinator) HeapTrend() []model.HeapTrendPoint {
	return c.predictor.Points()
}

// SlowRequests returns recent slow request entries, or nil when the
// access-log collector is not configured.
func (c *Coordinator) SlowRequests(limit int) []collector.RequestEntry {
	if c.accessLog == nil {
		return nil
	}
	return c.accessLog.SlowRequests(limit)
}

// RequestStats returns aggregate access-log statistics, or nil when the
// access-log collector is not configured.
func (c *Coordinator) RequestStats() *collector.RequestStats {
	if c.accessLog == nil {
		return nil
	}
	st := c.accessLog.Stats()
	return &st
}
