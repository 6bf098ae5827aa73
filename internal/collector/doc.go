// Package collector provides the metric sources the coordinator polls each
// tick. Every source implements the same Collector interface and returns a
// Fields value holding whichever snapshot fields it produces; the
// coordinator merges them. A failing source degrades only its own fields —
// errors are classified (unavailable vs. timeout) so the coordinator can
// log the difference, but neither ever fails the tick.
//
// Implemented collectors: OS (/proc and statfs readings), JVM (scrape of a
// JMX Prometheus exporter endpoint), access log (incremental tail with
// slow-request tracking), and an optional PromQL source that queries a
// Prometheus server instead of /proc.
package collector
