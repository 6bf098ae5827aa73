// Package score maps a raw MetricsSnapshot to a 0–100 composite health
// score. Each monitored metric gets a per-component score via
// piecewise-linear interpolation between its warn and critical thresholds;
// the overall score is a weighted sum. Components whose raw metric was
// unavailable are excluded and the remaining weights renormalized, so a
// single failed collector cannot drag the score to an extreme.
package score
