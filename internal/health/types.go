// Package health runs the periodic probe / auto-remediation monitor.
// Each configured check is probed on an interval; consecutive failures
// drive a healthy → degraded → failing derivation, and failing checks
// get exactly one open alert plus a scripted remedy.
package health

import (
	"context"
	"time"

	"github.com/Blackwoodproductions/webstack-services/internal/events"
)

// State is the derived condition of one check.
type State string

// Derived check states. The boundary between degraded and failing is
// the configured failure threshold.
const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateFailing  State = "failing"
)

// ProbeResult is one append-only probe observation.
type ProbeResult struct {
	ID         string
	Check      string
	OK         bool
	StatusCode int
	Latency    time.Duration
	ErrorText  string
	ObservedAt time.Time
}

// Alert is one raised incident for a failing check. At most one
// unresolved alert exists per check at a time.
type Alert struct {
	ID         string
	Check      string
	Message    string
	RaisedAt   time.Time
	ResolvedAt *time.Time
}

// CheckStatus is the monitor's current view of one check, served by
// the health API.
type CheckStatus struct {
	Name                string     `json:"name"`
	URL                 string     `json:"url"`
	Remedy              string     `json:"remedy,omitempty"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastProbe           *time.Time `json:"last_probe,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// ProbeStore appends probe observations.
type ProbeStore interface {
	RecordProbe(ctx context.Context, result ProbeResult) error
}

// AlertStore persists the alert lifecycle.
type AlertStore interface {
	FindUnresolved(ctx context.Context, check string) (Alert, bool, error)
	Raise(ctx context.Context, alert Alert) error
	Resolve(ctx context.Context, alertID string, resolvedAt time.Time) error
}

// Emitter receives monitor lifecycle events.
type Emitter interface {
	Emit(event events.Event)
}

// CachePurger empties the keyword-metrics cache (cache_clear remedy).
type CachePurger interface {
	Purge() int
}

// SessionRefresher revalidates and re-arms the BRON session bridge
// (token_refresh remedy).
type SessionRefresher interface {
	RefreshAll(ctx context.Context) int
}

// Clock supplies the current time, injectable for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints IDs for probe rows and alerts.
type IDGenerator interface {
	NewID() (string, error)
}
