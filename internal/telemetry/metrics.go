package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the instruments the coordinator and dispatcher update.
type Metrics struct {
	registry *prometheus.Registry

	// TickDuration observes wall time per monitoring tick.
	TickDuration prometheus.Histogram

	// TicksTotal counts completed ticks.
	TicksTotal prometheus.Counter

	// CollectorFailures counts failed collector calls, labeled by source
	// and failure kind (timeout vs unavailable).
	CollectorFailures *prometheus.CounterVec

	// AlertsFired counts alerts handed to the dispatcher, labeled by kind
	// and severity.
	AlertsFired *prometheus.CounterVec

	// AlertsDelivered counts successful channel deliveries, labeled by
	// channel and kind.
	AlertsDelivered *prometheus.CounterVec

	// DispatchFailures counts failed channel deliveries, labeled by channel.
	DispatchFailures *prometheus.CounterVec

	// HealthScore exports the latest overall score as a gauge so external
	// Prometheus can alert on serverpulse's own assessment.
	HealthScore prometheus.Gauge
}

// New creates the instrument set on a private registry that also carries
// the standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "serverpulse",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one full monitoring tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "serverpulse",
			Name:      "ticks_total",
			Help:      "Completed monitoring ticks.",
		}),
		CollectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serverpulse",
			Name:      "collector_failures_total",
			Help:      "Collector calls that failed or timed out.",
		}, []string{"source", "kind"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serverpulse",
			Name:      "alerts_fired_total",
			Help:      "Alerts handed to the dispatcher.",
		}, []string{"alert_kind", "severity"}),
		AlertsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serverpulse",
			Name:      "alerts_delivered_total",
			Help:      "Successful channel deliveries.",
		}, []string{"channel", "alert_kind"}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "serverpulse",
			Name:      "dispatch_failures_total",
			Help:      "Failed channel deliveries.",
		}, []string{"channel"}),
		HealthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "serverpulse",
			Name:      "health_score",
			Help:      "Latest overall health score (0-100).",
		}),
	}

	reg.MustRegister(
		m.TickDuration,
		m.TicksTotal,
		m.CollectorFailures,
		m.AlertsFired,
		m.AlertsDelivered,
		m.DispatchFailures,
		m.HealthScore,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
