package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/serverpulse/serverpulse/internal/config"
	"github.com/serverpulse/serverpulse/internal/model"
)

// JMX exporter metric families read per scrape. The exporter's standard JVM
// collectors expose memory by area/pool and thread counts by state; the
// Tomcat module adds thread pool gauges.
const (
	jvmMemUsed      = "jvm_memory_bytes_used"
	jvmMemMax       = "jvm_memory_bytes_max"
	jvmPoolUsed     = "jvm_memory_pool_bytes_used"
	jvmPoolMax      = "jvm_memory_pool_bytes_max"
	jvmThreadsState = "jvm_threads_state"

	tomcatThreadsBusy = "tomcat_threads_busy"
	tomcatThreadsMax  = "tomcat_threads_max"
)

// oldGenPools are the memory pool name fragments that identify the old
// generation across collectors (Parallel, G1, CMS).
var oldGenPools = []string{"Old Gen", "Tenured"}

// JVMCollector scrapes a JMX Prometheus exporter endpoint and derives the
// JVM-group snapshot fields: heap %, OldGen %, thread pool utilization %,
// and the blocked-thread count. A connection failure marks the whole group
// unavailable for the tick.
type JVMCollector struct {
	endpoint string
	poolName string
	client   *http.Client
}

// NewJVM builds the exporter scraper. The HTTP client is created once and
// reused; the per-tick deadline comes from the Collect context.
func NewJVM(cfg config.JVMCollectorConfig) *JVMCollector {
	return &JVMCollector{
		endpoint: cfg.Endpoint,
		poolName: cfg.ThreadPoolName,
		client:   &http.Client{},
	}
}

func (j *JVMCollector) Name() string { return "jvm" }

// Collect fetches and parses one exposition. Individual metric families
// missing from the scrape leave their field invalid without failing the
// rest of the group.
func (j *JVMCollector) Collect(ctx context.Context) (Fields, error) {
	var f Fields

	mfs, err := fetchMetrics(ctx, j.client, j.endpoint)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return f, fmt.Errorf("jvm: scrape %s: %w", j.endpoint, ErrTimeout)
		}
		return f, fmt.Errorf("jvm: scrape %s: %w", j.endpoint, ErrUnavailable)
	}

	if used, max := sumLabeled(mfs[jvmMemUsed], "area", "heap"), sumLabeled(mfs[jvmMemMax], "area", "heap"); max > 0 {
		f.HeapUsedPct = model.Sampled(used / max * 100)
	}

	if used, max := sumOldGen(mfs[jvmPoolUsed]), sumOldGen(mfs[jvmPoolMax]); max > 0 {
		f.OldGenUsedPct = model.Sampled(used / max * 100)
	}

	if mf := mfs[jvmThreadsState]; mf != nil {
		f.StuckThreads = model.Sampled(sumLabeled(mf, "state", "BLOCKED"))
	}

	busy := j.poolGauge(mfs[tomcatThreadsBusy])
	max := j.poolGauge(mfs[tomcatThreadsMax])
	if max > 0 {
		f.ThreadPoolUtilPct = model.Sampled(busy / max * 100)
	}

	return f, nil
}

// poolGauge reads a thread pool gauge, restricted to the configured pool
// name when one is set, summed across pools otherwise.
func (j *JVMCollector) poolGauge(mf *dto.MetricFamily) float64 {
	if j.poolName == "" {
		return sumFamily(mf)
	}
	return sumLabeled(mf, "name", j.poolName)
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += metricValue(m)
	}
	return total
}

// sumLabeled sums series in mf whose label exactly equals value.
func sumLabeled(mf *dto.MetricFamily, label, value string) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if hasLabel(m, label, value) {
			total += metricValue(m)
		}
	}
	return total
}

// sumOldGen sums series whose "pool" label names an old-generation pool.
func sumOldGen(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() != "pool" {
				continue
			}
			for _, frag := range oldGenPools {
				if containsFold(lp.GetValue(), frag) {
					total += metricValue(m)
				}
			}
		}
	}
	return total
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	default:
		return 0
	}
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
