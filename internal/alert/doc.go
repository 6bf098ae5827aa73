// Package alert implements the per-kind alert state machine with throttling
// and hysteresis. Each alert kind moves through
// Inactive → Active → (Dispatched | Suppressed) → Resolved → Inactive,
// driven once per monitoring tick. Re-notifications for a still-breaching
// metric are throttled per kind; breaches swallowed by the throttle are
// counted and surfaced in the next dispatched message. An alert resolves
// only when its metric drops below the kind's clear threshold — strictly
// inside the hysteresis band below warn — so oscillation around the
// critical boundary cannot produce alert/resolve flapping.
package alert
