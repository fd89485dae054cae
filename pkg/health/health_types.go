package health

import (
	"sync"
	"time"
)

// Status is a component's health. Worst status wins when aggregating.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of probing one component
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"-"`
	DurationMS  float64        `json:"duration_ms"`
}

// CheckFunc probes one component
type CheckFunc func() Check

// HealthChecker runs the registered checks behind the /health, /ready and
// /live endpoints
type HealthChecker struct {
	started time.Time

	mu          sync.RWMutex
	checks      map[string]CheckFunc
	readyChecks map[string]CheckFunc
	liveChecks  map[string]CheckFunc
}

// Response represents the overall health response
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"-"`
	UptimeSec float64          `json:"uptime_seconds"`
}
