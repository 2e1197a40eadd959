package api

import (
	"sync"
	"time"

	"github.com/skatehive-leaderboard/internal/service"
)

// CycleSnapshot is the last cycle as shown on /status.
type CycleSnapshot struct {
	FinishedAt time.Time            `json:"finished_at"`
	Error      string               `json:"error,omitempty"`
	Report     *service.CycleReport `json:"report,omitempty"`
}

// CycleStatus remembers the outcome of the most recent cycle.
type CycleStatus struct {
	mu   sync.RWMutex
	last *CycleSnapshot
}

// NewCycleStatus creates an empty status holder.
func NewCycleStatus() *CycleStatus {
	return &CycleStatus{}
}

// Record stores the outcome of a cycle.
func (c *CycleStatus) Record(report *service.CycleReport, err error) {
	snap := &CycleSnapshot{FinishedAt: time.Now().UTC(), Report: report}
	if err != nil {
		snap.Error = err.Error()
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
}

// Snapshot returns the last recorded cycle, or nil before the first one.
func (c *CycleStatus) Snapshot() *CycleSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
