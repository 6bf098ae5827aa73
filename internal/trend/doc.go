// Package trend keeps a bounded history of heap-usage samples and
// extrapolates the time remaining until heap exhaustion. A least-squares
// line is fitted over the retained window, optionally after a moving-average
// smoothing pass to damp single-sample noise. A flat or shrinking heap, too
// little history, or a projection beyond the configured horizon all yield
// "no prediction" — a healthy outcome, not an error.
package trend
