// Package ws streams the coordinator's published state to WebSocket
// clients. A single hub broadcasts the latest status envelope on a fixed
// interval and handles client lifecycle with ping/pong keepalives.
package ws
