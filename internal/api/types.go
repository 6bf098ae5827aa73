package api

import (
	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/collector"
	"github.com/serverpulse/serverpulse/internal/model"
)

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Active  []alert.Alert `json:"active"`
	History []alert.Alert `json:"history"`
}

// HeapTrendResponse is the payload for GET /api/v1/heap-trend.
type HeapTrendResponse struct {
	Points     []model.HeapTrendPoint `json:"points"`
	Prediction *model.OOMPrediction   `json:"prediction,omitempty"`
}

// SlowRequestsResponse is the payload for GET /api/v1/slow-requests.
type SlowRequestsResponse struct {
	Requests []collector.RequestEntry `json:"requests"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
