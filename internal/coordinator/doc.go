// Package coordinator drives the periodic monitoring cycle: poll every
// collector under its own bounded timeout, merge the results into one
// immutable snapshot, fold in the heap-trend OOM projection, compute the
// health score, run the alert state machine, hand dispatches off without
// blocking the next tick, and atomically publish the tick's state for
// concurrent API and WebSocket readers. A tick that obtains no usable
// metrics still completes and publishes an all-unavailable snapshot with
// "unknown" health — no collector failure can stall the scheduler.
package coordinator
