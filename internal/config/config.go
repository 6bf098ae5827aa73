package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTickInterval      = 30 * time.Second
	DefaultCollectorTimeout  = 10 * time.Second
	DefaultDispatchTimeout   = 10 * time.Second
	DefaultBroadcastInterval = 5 * time.Second
	DefaultHTTPPort          = 8080

	DefaultTrendWindow    = 60
	DefaultTrendSmoothing = 3
	DefaultTrendHorizon   = 24 * time.Hour

	DefaultThrottleInterval = 15 * time.Minute
	DefaultStuckThreadCap   = 10
	DefaultSlowThresholdMs  = 5000
	DefaultLogMaxEntries    = 10000
	DefaultLogTailLines     = 1000
)

// weightsEpsilon is the tolerance when checking that weights sum to 1.0.
const weightsEpsilon = 1e-6

// AlertKinds is the closed set of alert rule names.
var AlertKinds = []string{
	"heap_critical",
	"oldgen_high",
	"oom_prediction",
	"stuck_threads",
	"threadpool_saturation",
	"cpu_high",
	"mem_high",
}

// ComponentNames is the closed set of health score components.
var ComponentNames = []string{"heap", "thread_pool", "cpu", "memory", "stuck_threads"}

// Config is the top-level serverpulse configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor    MonitorConfig    `yaml:"monitor"`
	Collectors CollectorsConfig `yaml:"collectors"`
	Health     HealthConfig     `yaml:"health"`
	Trend      TrendConfig      `yaml:"trend"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Channels   ChannelsConfig   `yaml:"channels"`
}

// MonitorConfig holds the tick scheduler and HTTP surface settings.
type MonitorConfig struct {
	// TickInterval controls how often a full monitoring cycle runs.
	TickInterval time.Duration `yaml:"tick_interval"`

	// CollectorTimeout bounds each collector call within a tick.
	CollectorTimeout time.Duration `yaml:"collector_timeout"`

	// DispatchTimeout bounds each alert channel delivery attempt.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// HTTPPort is the port the REST API, /metrics, and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often the WebSocket hub pushes the
	// current status to connected dashboard clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// CollectorsConfig holds per-source collector settings.
type CollectorsConfig struct {
	OS         OSCollectorConfig         `yaml:"os"`
	JVM        JVMCollectorConfig        `yaml:"jvm"`
	AccessLog  AccessLogConfig           `yaml:"access_log"`
	Prometheus PrometheusCollectorConfig `yaml:"prometheus"`
}

// OSCollectorConfig configures the /proc-based OS metrics collector.
type OSCollectorConfig struct {
	Enabled bool `yaml:"enabled"`

	// DiskPath is the mount point whose usage feeds disk_pct.
	DiskPath string `yaml:"disk_path"`
}

// JVMCollectorConfig configures the JMX exporter scrape.
type JVMCollectorConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the full URL of the JMX Prometheus exporter
	// (e.g. http://localhost:9404/metrics).
	Endpoint string `yaml:"endpoint"`

	// ThreadPoolName selects which server thread pool to read when the
	// exporter exposes several (empty = sum across pools).
	ThreadPoolName string `yaml:"thread_pool_name"`
}

// AccessLogConfig configures the access-log tail collector.
type AccessLogConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the access log file to tail.
	Path string `yaml:"path"`

	// SlowThresholdMs marks a request as slow at or above this duration.
	SlowThresholdMs int `yaml:"slow_threshold_ms"`

	// MaxEntries bounds the in-memory window of recent requests.
	MaxEntries int `yaml:"max_entries"`

	// TailLines caps how many new lines are ingested per tick. Lines past
	// the cap stay in the file and are consumed on subsequent ticks.
	TailLines int `yaml:"tail_lines"`
}

// PrometheusCollectorConfig configures the optional PromQL-based OS metrics
// source, used instead of /proc when the host already runs node_exporter
// behind a Prometheus server.
type PrometheusCollectorConfig struct {
	Enabled bool `yaml:"enabled"`

	// URL is the Prometheus server base URL.
	URL string `yaml:"url"`

	// Queries override the built-in PromQL expressions per field.
	CPUQuery  string `yaml:"cpu_query"`
	MemQuery  string `yaml:"mem_query"`
	DiskQuery string `yaml:"disk_query"`
}

// HealthConfig holds scoring weights, thresholds, and status bands.
type HealthConfig struct {
	// Weights maps component name to its share of the overall score.
	// Must sum to 1.0.
	Weights map[string]float64 `yaml:"weights"`

	// Bands are the status label boundaries on the overall score.
	Bands BandsConfig `yaml:"bands"`

	// StuckThreadCap is the stuck-thread count at which the component
	// score reaches 0.
	StuckThreadCap int `yaml:"stuck_thread_cap"`
}

// BandsConfig defines the score boundaries for status labels.
// overall >= Healthy → healthy; >= Warning → warning; else critical.
type BandsConfig struct {
	Healthy float64 `yaml:"healthy"`
	Warning float64 `yaml:"warning"`
}

// TrendConfig tunes the heap trend predictor.
type TrendConfig struct {
	// Window is the number of heap samples retained for trend fitting.
	Window int `yaml:"window"`

	// Smoothing is the moving-average span applied before fitting.
	// A span of 0 or 1 disables smoothing.
	Smoothing int `yaml:"smoothing"`

	// Horizon caps projections: an ETA beyond it is reported as
	// "no prediction" rather than a misleading huge number.
	Horizon time.Duration `yaml:"horizon"`
}

// AlertsConfig holds all alert rules and throttle settings.
type AlertsConfig struct {
	// DefaultThrottle is the minimum resend interval for rules that do
	// not set their own.
	DefaultThrottle time.Duration `yaml:"default_throttle"`

	// ResolveThrottle is the minimum interval between "resolved"
	// notifications per kind, independent of the firing throttle.
	ResolveThrottle time.Duration `yaml:"resolve_throttle"`

	// Rules maps alert kind to its thresholds. Kinds absent from the file
	// keep their defaults; an unknown kind is a validation error.
	Rules map[string]Rule `yaml:"rules"`
}

// Rule defines the thresholds for one alert kind.
//
// For most kinds the value is a percentage (or count) where higher is worse:
// warn < critical, and clear ≤ warn forms the hysteresis band. For
// oom_prediction the value is the projected seconds until exhaustion, so
// lower is worse and the ordering inverts: critical < warn ≤ clear.
type Rule struct {
	Warn     float64       `yaml:"warn"`
	Critical float64       `yaml:"critical"`
	Clear    float64       `yaml:"clear"`
	Throttle time.Duration `yaml:"throttle"`
}

// ChannelsConfig holds alert delivery channel settings.
type ChannelsConfig struct {
	Email    EmailConfig     `yaml:"email"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// EmailConfig configures the SMTP delivery channel.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`

	// PasswordEnv names the environment variable holding the SMTP password.
	PasswordEnv string `yaml:"password_env"`

	From string   `yaml:"from"`
	To   []string `yaml:"to"`

	// StartTLS upgrades the connection before authenticating.
	StartTLS bool `yaml:"starttls"`
}

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string {
	if e.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(e.PasswordEnv)
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
// Returns empty string if URLEnv is unset or the variable is not found.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults, then the whole
// configuration is validated. The monitoring core assumes a Config returned
// from Load is internally consistent.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults, and validates raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values, including a
// complete rule set and the canonical weight distribution.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			TickInterval:      DefaultTickInterval,
			CollectorTimeout:  DefaultCollectorTimeout,
			DispatchTimeout:   DefaultDispatchTimeout,
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Collectors: CollectorsConfig{
			OS: OSCollectorConfig{Enabled: true, DiskPath: "/"},
			AccessLog: AccessLogConfig{
				SlowThresholdMs: DefaultSlowThresholdMs,
				MaxEntries:      DefaultLogMaxEntries,
				TailLines:       DefaultLogTailLines,
			},
		},
		Health: HealthConfig{
			Weights: map[string]float64{
				"heap":          0.30,
				"thread_pool":   0.25,
				"cpu":           0.20,
				"memory":        0.15,
				"stuck_threads": 0.10,
			},
			Bands:          BandsConfig{Healthy: 85, Warning: 60},
			StuckThreadCap: DefaultStuckThreadCap,
		},
		Trend: TrendConfig{
			Window:    DefaultTrendWindow,
			Smoothing: DefaultTrendSmoothing,
			Horizon:   DefaultTrendHorizon,
		},
		Alerts: AlertsConfig{
			DefaultThrottle: DefaultThrottleInterval,
			ResolveThrottle: DefaultThrottleInterval,
			Rules: map[string]Rule{
				"heap_critical":         {Warn: 70, Critical: 85, Clear: 65},
				"oldgen_high":           {Warn: 80, Critical: 90, Clear: 75},
				"oom_prediction":        {Warn: 3600, Critical: 1800, Clear: 7200},
				"stuck_threads":         {Warn: 1, Critical: 10, Clear: 1},
				"threadpool_saturation": {Warn: 70, Critical: 90, Clear: 65},
				"cpu_high":              {Warn: 80, Critical: 95, Clear: 75},
				"mem_high":              {Warn: 80, Critical: 90, Clear: 75},
			},
		},
	}
}

// validate checks required fields and structural constraints: positive
// intervals, warn < critical per rule, clear inside the hysteresis band,
// weights summing to 1.0, and ordered band boundaries.
func validate(cfg *Config) error {
	if cfg.Monitor.TickInterval <= 0 {
		return fmt.Errorf("monitor.tick_interval must be positive")
	}
	if cfg.Monitor.CollectorTimeout <= 0 {
		return fmt.Errorf("monitor.collector_timeout must be positive")
	}
	if cfg.Monitor.DispatchTimeout <= 0 {
		return fmt.Errorf("monitor.dispatch_timeout must be positive")
	}
	if cfg.Monitor.HTTPPort <= 0 || cfg.Monitor.HTTPPort > 65535 {
		return fmt.Errorf("monitor.http_port %d out of range", cfg.Monitor.HTTPPort)
	}

	if cfg.Collectors.JVM.Enabled && cfg.Collectors.JVM.Endpoint == "" {
		return fmt.Errorf("collectors.jvm.endpoint is required when enabled")
	}
	if cfg.Collectors.AccessLog.Enabled && cfg.Collectors.AccessLog.Path == "" {
		return fmt.Errorf("collectors.access_log.path is required when enabled")
	}
	if cfg.Collectors.Prometheus.Enabled && cfg.Collectors.Prometheus.URL == "" {
		return fmt.Errorf("collectors.prometheus.url is required when enabled")
	}

	var sum float64
	for name, w := range cfg.Health.Weights {
		if !knownName(ComponentNames, name) {
			return fmt.Errorf("health.weights: unknown component %q", name)
		}
		if w < 0 {
			return fmt.Errorf("health.weights.%s must not be negative", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightsEpsilon {
		return fmt.Errorf("health.weights must sum to 1.0 (got %.6f)", sum)
	}
	if cfg.Health.Bands.Healthy <= cfg.Health.Bands.Warning {
		return fmt.Errorf("health.bands: healthy boundary (%.1f) must exceed warning (%.1f)",
			cfg.Health.Bands.Healthy, cfg.Health.Bands.Warning)
	}
	if cfg.Health.StuckThreadCap <= 0 {
		return fmt.Errorf("health.stuck_thread_cap must be positive")
	}

	if cfg.Trend.Window < 2 {
		return fmt.Errorf("trend.window must be at least 2")
	}
	if cfg.Trend.Smoothing < 0 {
		return fmt.Errorf("trend.smoothing must not be negative")
	}
	if cfg.Trend.Horizon <= 0 {
		return fmt.Errorf("trend.horizon must be positive")
	}

	if cfg.Alerts.DefaultThrottle <= 0 {
		return fmt.Errorf("alerts.default_throttle must be positive")
	}
	for kind, rule := range cfg.Alerts.Rules {
		if !knownName(AlertKinds, kind) {
			return fmt.Errorf("alerts.rules: unknown kind %q", kind)
		}
		if kind == "oom_prediction" {
			// Seconds-to-exhaustion: lower is worse.
			if rule.Critical >= rule.Warn {
				return fmt.Errorf("alerts.rules.%s: critical (%.0f) must be below warn (%.0f)",
					kind, rule.Critical, rule.Warn)
			}
			if rule.Clear < rule.Warn {
				return fmt.Errorf("alerts.rules.%s: clear (%.0f) must not be below warn (%.0f)",
					kind, rule.Clear, rule.Warn)
			}
			continue
		}
		if rule.Warn >= rule.Critical {
			return fmt.Errorf("alerts.rules.%s: warn (%.1f) must be below critical (%.1f)",
				kind, rule.Warn, rule.Critical)
		}
		if rule.Clear > rule.Warn {
			return fmt.Errorf("alerts.rules.%s: clear (%.1f) must not exceed warn (%.1f)",
				kind, rule.Clear, rule.Warn)
		}
	}

	for i, wh := range cfg.Channels.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("channels.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("channels.webhooks[%d]: url_env is required", i)
		}
	}
	if cfg.Channels.Email.Enabled {
		if cfg.Channels.Email.SMTPHost == "" {
			return fmt.Errorf("channels.email.smtp_host is required when enabled")
		}
		if len(cfg.Channels.Email.To) == 0 {
			return fmt.Errorf("channels.email.to must list at least one recipient")
		}
	}
	return nil
}

// knownName reports whether name is in the given closed set.
func knownName(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}
