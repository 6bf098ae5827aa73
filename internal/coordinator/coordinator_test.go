package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/collector"
	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/dispatch"
	"github.com/serverpulse/serverpulse/internal/model"
	"github.com/serverpulse/serverpulse/internal/score"
	"github.com/serverpulse/serverpulse/internal/trend"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * 30 * time.Second)
}

// fakeCollector returns canned fields, optionally with an error.
type fakeCollector struct {
	name   string
	fields collector.Fields
	err    error
	delay  time.Duration
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(ctx context.Context) (collector.Fields, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return collector.Fields{}, collector.ErrTimeout
		}
	}
	return f.fields, f.err
}

func healthyJVMFields() collector.Fields {
	return collector.Fields{
		HeapUsedPct:       model.Sampled(55),
		OldGenUsedPct:     model.Sampled(40),
		ThreadPoolUtilPct: model.Sampled(30),
		StuckThreads:      model.Sampled(0),
	}
}

func healthyOSFields() collector.Fields {
	return collector.Fields{
		CPUPct:  model.Sampled(25),
		MemPct:  model.Sampled(45),
		DiskPct: model.Sampled(60),
	}
}

func testCoordinator(t *testing.T, collectors ...collector.Collector) *Coordinator {
	t.Helper()
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) failed: %v", err)
	}
	return New(Options{
		Collectors:       collectors,
		Predictor:        trend.New(cfg.Trend.Window, cfg.Trend.Smoothing, cfg.Trend.Horizon),
		Scorer:           score.New(cfg.Health, cfg.Alerts.Rules),
		Engine:           alert.NewEngine(cfg.Alerts),
		Dispatcher:       dispatch.New(nil, time.Second, nil),
		TickInterval:     30 * time.Second,
		CollectorTimeout: 100 * time.Millisecond,
		Clock:            func() time.Time { return baseTime },
	})
}

func TestTick_PublishesStatus(t *testing.T) {
	c := testCoordinator(t,
		&fakeCollector{name: "jvm", fields: healthyJVMFields()},
		&fakeCollector{name: "os", fields: healthyOSFields()},
	)

	if c.Status() != nil {
		t.Fatal("Status() before first tick should be nil")
	}

	c.Tick(context.Background(), tick(0))

	st := c.Status()
	if st == nil {
		t.Fatal("Status() after tick is nil")
	}
	if !st.GeneratedAt.Equal(tick(0)) {
		t.Errorf("GeneratedAt = %v, want %v", st.GeneratedAt, tick(0))
	}
	if st.Snapshot.HeapUsedPct.Value != 55 || st.Snapshot.CPUPct.Value != 25 {
		t.Errorf("snapshot fields not merged: %+v", st.Snapshot)
	}
	if st.Health.Status != model.StatusHealthy {
		t.Errorf("Health.Status = %q, want healthy", st.Health.Status)
	}
	if len(st.ActiveAlerts) != 0 {
		t.Errorf("ActiveAlerts = %+v, want none", st.ActiveAlerts)
	}
}

func TestTick_DegradedCollector(t *testing.T) {
	c := testCoordinator(t,
		&fakeCollector{name: "jvm", err: collector.ErrUnavailable},
		&fakeCollector{name: "os", fields: healthyOSFields()},
	)

	c.Tick(context.Background(), tick(0))

	st := c.Status()
	if st.Snapshot.HeapUsedPct.Valid {
		t.Error("heap should be unavailable when the JVM collector fails")
	}
	if !st.Snapshot.CPUPct.Valid {
		t.Error("os fields should survive a sibling collector failure")
	}
	// cpu + memory renormalized; still healthy.
	if st.Health.Status != model.StatusHealthy {
		t.Errorf("Health.Status = %q, want healthy from remaining components", st.Health.Status)
	}
	if _, ok := st.Health.Components["heap"]; ok {
		t.Error("heap component should be excluded, not scored")
	}
}

func TestTick_AllCollectorsFail(t *testing.T) {
	c := testCoordinator(t,
		&fakeCollector{name: "jvm", err: collector.ErrUnavailable},
		&fakeCollector{name: "os", err: collector.ErrUnavailable},
	)

	c.Tick(context.Background(), tick(0))

	if got := c.Health().Status; got != model.StatusUnknown {
		t.Errorf("Health().Status = %q, want unknown", got)
	}
}

func TestTick_SlowCollectorTimesOut(t *testing.T) {
	c := testCoordinator(t,
		&fakeCollector{name: "jvm", fields: healthyJVMFields(), delay: time.Second},
		&fakeCollector{name: "os", fields: healthyOSFields()},
	)

	start := time.Now()
	c.Tick(context.Background(), tick(0))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Tick blocked %v; the collector timeout should bound it", elapsed)
	}

	st := c.Status()
	if st.Snapshot.HeapUsedPct.Valid {
		t.Error("timed-out collector's fields should be unavailable")
	}
	if !st.Snapshot.CPUPct.Valid {
		t.Error("fast collector should still contribute")
	}
}

func TestTick_AlertFiresAndResolves(t *testing.T) {
	hot := &fakeCollector{name: "jvm", fields: collector.Fields{
		HeapUsedPct: model.Sampled(92),
	}}
	c := testCoordinator(t, hot)

	c.Tick(context.Background(), tick(0))
	active := c.Alerts()
	if len(active) != 1 || active[0].Kind != alert.KindHeapCritical {
		t.Fatalf("Alerts() = %+v, want one heap_critical", active)
	}
	if len(c.Status().ActiveAlerts) != 1 {
		t.Errorf("published ActiveAlerts = %+v, want one", c.Status().ActiveAlerts)
	}

	hot.fields = collector.Fields{HeapUsedPct: model.Sampled(50)}
	c.Tick(context.Background(), tick(1))
	if got := c.Alerts(); len(got) != 0 {
		t.Errorf("Alerts() after recovery = %+v, want none", got)
	}

	hist := c.AlertHistory(0)
	if len(hist) != 2 {
		t.Fatalf("AlertHistory = %d entries, want fire + resolve", len(hist))
	}
	if hist[0].Resolved || !hist[1].Resolved {
		t.Errorf("history order wrong: %+v", hist)
	}
}

func TestTick_HeapTrendFeedsPrediction(t *testing.T) {
	rising := &fakeCollector{name: "jvm"}
	c := testCoordinator(t, rising)

	// 1% per 30s tick: exhaustion well inside the horizon.
	for i := 0; i < 10; i++ {
		rising.fields = collector.Fields{HeapUsedPct: model.Sampled(60 + float64(i))}
		c.Tick(context.Background(), tick(i))
	}

	if pts := c.HeapTrend(); len(pts) != 10 {
		t.Fatalf("HeapTrend = %d points, want 10", len(pts))
	}
	pred := c.Status().Snapshot.OOMPrediction
	if pred == nil {
		t.Fatal("OOMPrediction = nil, want projection for rising heap")
	}
	if pred.GrowthPctPerMin <= 0 {
		t.Errorf("GrowthPctPerMin = %.3f, want positive", pred.GrowthPctPerMin)
	}
}

func TestApplyConfig(t *testing.T) {
	warm := &fakeCollector{name: "jvm", fields: collector.Fields{
		HeapUsedPct: model.Sampled(65),
	}}
	c := testCoordinator(t, warm)

	c.Tick(context.Background(), tick(0))
	if got := c.Alerts(); len(got) != 0 {
		t.Fatalf("65%% heap alerted under default thresholds: %+v", got)
	}

	cfg, err := config.Parse([]byte(`
trend:
  window: 2
alerts:
  rules:
    heap_critical: {warn: 50, critical: 60, clear: 45}
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c.ApplyConfig(cfg)

	c.Tick(context.Background(), tick(1))
	got := c.Alerts()
	if len(got) != 1 || got[0].Severity != alert.SeverityCritical {
		t.Errorf("Alerts() after reload = %+v, want one critical heap alert", got)
	}

	// The reloaded trend window applies to the retained heap samples too.
	c.Tick(context.Background(), tick(2))
	if pts := c.HeapTrend(); len(pts) != 2 {
		t.Errorf("len(HeapTrend()) = %d after reload with window 2, want 2", len(pts))
	}
}

func TestHealth_BeforeFirstTick(t *testing.T) {
	c := testCoordinator(t, &fakeCollector{name: "jvm", fields: healthyJVMFields()})
	if got := c.Health(); got.Status != model.StatusUnknown {
		t.Errorf("Health() before first tick = %+v, want unknown placeholder", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := testCoordinator(t, &fakeCollector{name: "jvm", fields: healthyJVMFields()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// The immediate first tick publishes without waiting an interval.
	deadline := time.After(2 * time.Second)
	for c.Status() == nil {
		select {
		case <-deadline:
			t.Fatal("no status published after Run started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestSlowRequests_NoAccessLog(t *testing.T) {
	c := testCoordinator(t, &fakeCollector{name: "jvm", fields: healthyJVMFields()})
	if got := c.SlowRequests(10); got != nil {
		t.Errorf("SlowRequests = %v, want nil without an access-log collector", got)
	}
	if got := c.RequestStats(); got != nil {
		t.Errorf("RequestStats = %v, want nil without an access-log collector", got)
	}
}
