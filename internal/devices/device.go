// Package devices is the device registry: one record per push token,
// carrying activity, mute, throttle and preference state. It exposes the
// Registry contract used by the dispatch engine, a Postgres implementation,
// an in-memory implementation for tests, and the Service that client-facing
// heartbeat/mute/preference endpoints call.
package devices

import (
	"context"
	"time"
)

// Platform values stored in devices.platform.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformOther   = "other"
)

// Device is a registered installation.
type Device struct {
	UserID             string
	PushToken          string
	Platform           string
	IsActive           bool
	LastActiveAt       *time.Time
	LastReminderSentAt *time.Time
	MutedUntil         *time.Time
	Preferences        Preferences
}

// Muted reports whether the mute window is still open at now. A past or
// nil MutedUntil is never muted.
func (d Device) Muted(now time.Time) bool {
	return d.MutedUntil != nil && d.MutedUntil.After(now)
}

// Fields is the write set applied by UpdateFields and UpdateDevices. Nil
// pointers are left
// untouched; ClearMute sets muted_until to NULL and wins over MutedUntil.
type Fields struct {
	LastActiveAt       *time.Time
	LastReminderSentAt *time.Time
	MutedUntil         *time.Time
	ClearMute          bool
}

func (f Fields) empty() bool {
	return f.LastActiveAt == nil && f.LastReminderSentAt == nil && f.MutedUntil == nil && !f.ClearMute
}

// Registry is the device store contract. Implementations must not cache:
// every call observes current state. All returned errors are registry
// errors (see internal/errors).
type Registry interface {
	// FindCandidates returns devices matching every condition in filter.
	FindCandidates(ctx context.Context, filter Filter) ([]Device, error)
	// UpdateFields applies fields to every device owned by userIDs in one
	// statement. LastReminderSentAt never moves backwards.
	UpdateFields(ctx context.Context, userIDs []string, fields Fields) error
	// UpdateDevices is UpdateFields keyed by push token, leaving a user's
	// other devices untouched.
	UpdateDevices(ctx context.Context, pushTokens []string, fields Fields) error
	// GetPreferences returns the stored preferences for a push token and
	// whether a row exists.
	GetPreferences(ctx context.Context, pushToken string) (Preferences, bool, error)
	// PutPreferences upserts the preferences for a push token.
	PutPreferences(ctx context.Context, pushToken string, prefs Preferences) error
}

func laterOf(existing *time.Time, next time.Time) time.Time {
	if existing != nil && existing.After(next) {
		return *existing
	}
	return next
}
