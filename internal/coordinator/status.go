package coordinator

import (
	"sync"
	"time"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/model"
)

// Status is the complete published state of one tick. Built fresh each
// tick and swapped in whole; readers never observe a partial update.
type Status struct {
	Snapshot     *model.MetricsSnapshot `json:"snapshot"`
	Health       model.HealthScore      `json:"health"`
	ActiveAlerts []alert.Alert          `json:"active_alerts"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

// statusStore is the single-writer, many-reader holder of the latest Status.
// The coordinator publishes; API and WebSocket readers load.
type statusStore struct {
	mu  sync.RWMutex
	cur *Status
}

func (s *statusStore) publish(st *Status) {
	s.mu.Lock()
	s.cur = st
	s.mu.Unlock()
}

// load returns the latest published Status, or nil before the first tick.
// The returned value is shared and must be treated as read-only.
func (s *statusStore) load() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}
