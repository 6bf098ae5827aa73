// Package api exposes the read-only REST surface over the coordinator's
// latest published state. Every endpoint is non-blocking and reflects the
// last completed tick; nothing here can mutate monitoring state.
package api
