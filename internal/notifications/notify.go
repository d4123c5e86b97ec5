// Package notifications is the targeting and dispatch engine. A run of a
// notification class selects candidate devices from the registry, filters
// them by throttle, mute and preference state, sends one message per
// device in gateway-sized batches, and writes back the throttle state the
// run implies.
//
// Pipeline: query → filter → build → partition → dispatch → write back.
// Runs are triggered externally (HTTP trigger, pushctl, or the cron
// scheduler); the engine itself holds no locks.
package notifications

import (
	"time"

	"github.com/albapepper/scoracle-push/internal/devices"
	"github.com/albapepper/scoracle-push/internal/gateway"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultThrottleWindow spaces two reminders to the same device.
	DefaultThrottleWindow = 24 * time.Hour
	// ReminderInactivityWindow is how long a device must be idle before it
	// is reminded.
	ReminderInactivityWindow = 14 * time.Hour
	// BatchSize is the number of messages per gateway call.
	BatchSize = gateway.MaxBatchSize
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Class configures one independently scheduled notification type.
type Class struct {
	Name        string
	Description string

	// InactivityWindow, when set, restricts candidates to devices whose
	// last_active_at is older than now minus the window.
	InactivityWindow time.Duration
	// ThrottleWindow, when set, drops devices reminded within the window
	// and makes the run stamp last_reminder_sent_at on every target.
	ThrottleWindow time.Duration
	// RespectMute drops devices whose mute window is open.
	RespectMute bool
	// PreferenceKey gates the class on a device preference toggle.
	PreferenceKey string
	// RequiresContent demands a title and body in RunParams.
	RequiresContent bool

	Build func(d devices.Device, p RunParams) gateway.Message
}

// Throttled reports whether the class maintains throttle state.
func (c Class) Throttled() bool { return c.ThrottleWindow > 0 }

// RunParams carries trigger-supplied content for content classes.
type RunParams struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Outcome tallies one run.
type Outcome struct {
	RunID      string    `json:"run_id"`
	Class      string    `json:"class"`
	Targeted   int       `json:"targeted"`
	Success    int       `json:"sent"`
	Errors     int       `json:"errors"`
	Batches    int       `json:"batches"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
