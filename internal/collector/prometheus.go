package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	prommodel "github.com/prometheus/common/model"

	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/model"
)

// Default PromQL expressions, assuming node_exporter naming. Each yields a
// 0–100 percentage as an instant vector with a single sample.
const (
	defaultCPUQuery  = `100 * (1 - avg(rate(node_cpu_seconds_total{mode="idle"}[5m])))`
	defaultMemQuery  = `100 * (1 - node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes)`
	defaultDiskQuery = `100 * (1 - node_filesystem_avail_bytes{mountpoint="/"} / node_filesystem_size_bytes{mountpoint="/"})`
)

// PromCollector sources the OS-level fields from a Prometheus server via
// PromQL instead of reading /proc locally. Useful when serverpulse runs off
// the monitored host.
type PromCollector struct {
	api       promv1.API
	cpuQuery  string
	memQuery  string
	diskQuery string
}

// NewPrometheus builds the PromQL collector against the configured server.
func NewPrometheus(cfg config.PrometheusCollectorConfig) (*PromCollector, error) {
	client, err := api.NewClient(api.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("prometheus: new client: %w", err)
	}
	c := &PromCollector{
		api:       promv1.NewAPI(client),
		cpuQuery:  cfg.CPUQuery,
		memQuery:  cfg.MemQuery,
		diskQuery: cfg.DiskQuery,
	}
	if c.cpuQuery == "" {
		c.cpuQuery = defaultCPUQuery
	}
	if c.memQuery == "" {
		c.memQuery = defaultMemQuery
	}
	if c.diskQuery == "" {
		c.diskQuery = defaultDiskQuery
	}
	return c, nil
}

func (p *PromCollector) Name() string { return "prometheus" }

// Collect runs the three queries. A query returning no samples leaves its
// field invalid; a transport failure degrades the whole group.
func (p *PromCollector) Collect(ctx context.Context) (Fields, error) {
	var f Fields

	cpu, err := p.query(ctx, p.cpuQuery)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return f, fmt.Errorf("prometheus: %w", ErrTimeout)
		}
		return f, fmt.Errorf("prometheus: %w", ErrUnavailable)
	}
	if cpu != nil {
		f.CPUPct = model.Sampled(*cpu)
	}

	if mem, err := p.query(ctx, p.memQuery); err == nil && mem != nil {
		f.MemPct = model.Sampled(*mem)
	}
	if disk, err := p.query(ctx, p.diskQuery); err == nil && disk != nil {
		f.DiskPct = model.Sampled(*disk)
	}
	return f, nil
}

// query executes one instant query and extracts the first sample value.
// Returns nil without error when the result vector is empty.
func (p *PromCollector) query(ctx context.Context, q string) (*float64, error) {
	result, warnings, err := p.api.Query(ctx, q, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q, err)
	}
	if len(warnings) > 0 {
		slog.Debug("prometheus: query warnings", "query", q, "warnings", warnings)
	}

	vec, ok := result.(prommodel.Vector)
	if !ok || len(vec) == 0 {
		return nil, nil
	}
	v := float64(vec[0].Value)
	return &v, nil
}
