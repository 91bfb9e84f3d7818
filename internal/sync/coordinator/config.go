package coordinator

import (
	"time"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
)

// Config controls tick scheduling
type Config struct {
	// CheckInterval is the delay between the end of one tick and the start of the next
	CheckInterval time.Duration

	// ForceInterval is the minimum time between forced syncs. Zero disables forcing.
	ForceInterval time.Duration

	// Categories restricts scheduled syncs; empty syncs every source
	Categories []sources.Category
}

// ConfigFromSettings builds a Config from the scheduler section of the file configuration
func ConfigFromSettings(cfg *config.SchedulerConfig) Config {
	return Config{
		CheckInterval: cfg.GetCheckInterval(),
		ForceInterval: cfg.GetForceInterval(),
	}
}

// Callbacks are invoked from the scheduler goroutine after each tick. Nil
// callbacks are skipped; a panicking callback is recovered and logged.
type Callbacks struct {
	// OnUpdateDetected receives the records of a tick that produced changes
	OnUpdateDetected func(records []metadata.UpdateRecord)

	// OnError receives SyncAll errors and recovered panics
	OnError func(err error)
}

// Status is a snapshot of the scheduler state
type Status struct {
	Running       bool          `json:"running"`
	CheckInterval time.Duration `json:"checkInterval"`
	ForceInterval time.Duration `json:"forceInterval"`
	LastTick      time.Time     `json:"lastTick,omitzero"`
	LastForce     time.Time     `json:"lastForce,omitzero"`
	TickCount     int64         `json:"tickCount"`
	SkippedTicks  int64         `json:"skippedTicks"`
}
