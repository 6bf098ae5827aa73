// Package config loads, validates, and watches the serverpulse YAML
// configuration. Thresholds, weights, throttle intervals, and band
// boundaries are validated once at load time; the monitoring core receives
// an already-valid Config and never re-checks these constraints at tick
// time. Secrets (SMTP password, webhook URLs, API keys) are resolved from
// environment variables named in the file, never stored in it.
package config
