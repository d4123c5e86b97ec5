package devices

import (
	"context"
	"sync"

	appErr "github.com/albapepper/scoracle-push/internal/errors"
)

// MemoryRegistry is an in-process Registry. It applies the same filter and
// write semantics as PostgresRegistry and is safe for concurrent use.
type MemoryRegistry struct {
	mu      sync.Mutex
	devices []Device
	prefs   map[string]Preferences

	// FailFind and FailUpdate force the next calls to return a registry
	// error, for exercising failure paths.
	FailFind   error
	FailUpdate error

	Updates int
}

// NewMemoryRegistry returns a registry seeded with devs.
func NewMemoryRegistry(devs ...Device) *MemoryRegistry {
	m := &MemoryRegistry{prefs: make(map[string]Preferences)}
	for _, d := range devs {
		m.Add(d)
	}
	return m
}

// Add registers a device. Preferences on the device are stored under its
// push token.
func (m *MemoryRegistry) Add(d Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Platform == "" {
		d.Platform = PlatformOther
	}
	if d.Preferences != nil {
		m.prefs[d.PushToken] = d.Preferences.Normalize()
	}
	d.Preferences = nil
	m.devices = append(m.devices, d)
}

// Device returns a snapshot of the device with the given push token.
func (m *MemoryRegistry) Device(pushToken string) (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.PushToken == pushToken {
			return m.withPrefs(d), true
		}
	}
	return Device{}, false
}

func (m *MemoryRegistry) FindCandidates(ctx context.Context, filter Filter) ([]Device, error) {
	if err := filter.Validate(); err != nil {
		return nil, appErr.Registry("find candidates", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFind != nil {
		return nil, appErr.Registry("find candidates", m.FailFind)
	}
	var out []Device
	for _, d := range m.devices {
		if filter.Match(d) {
			out = append(out, m.withPrefs(d))
		}
	}
	return out, nil
}

func (m *MemoryRegistry) UpdateFields(ctx context.Context, userIDs []string, fields Fields) error {
	return m.update(userIDs, func(d *Device) string { return d.UserID }, fields)
}

func (m *MemoryRegistry) UpdateDevices(ctx context.Context, pushTokens []string, fields Fields) error {
	return m.update(pushTokens, func(d *Device) string { return d.PushToken }, fields)
}

func (m *MemoryRegistry) update(keys []string, keyOf func(*Device) string, fields Fields) error {
	if len(keys) == 0 || fields.empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdate != nil {
		return appErr.Registry("update fields", m.FailUpdate)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	for i := range m.devices {
		d := &m.devices[i]
		if _, ok := set[keyOf(d)]; !ok {
			continue
		}
		if fields.LastActiveAt != nil {
			t := *fields.LastActiveAt
			d.LastActiveAt = &t
		}
		if fields.LastReminderSentAt != nil {
			t := laterOf(d.LastReminderSentAt, *fields.LastReminderSentAt)
			d.LastReminderSentAt = &t
		}
		switch {
		case fields.ClearMute:
			d.MutedUntil = nil
		case fields.MutedUntil != nil:
			t := *fields.MutedUntil
			d.MutedUntil = &t
		}
	}
	m.Updates++
	return nil
}

func (m *MemoryRegistry) GetPreferences(ctx context.Context, pushToken string) (Preferences, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFind != nil {
		return nil, false, appErr.Registry("get preferences", m.FailFind)
	}
	p, ok := m.prefs[pushToken]
	if !ok {
		return DefaultPreferences(), false, nil
	}
	return p.Normalize(), true, nil
}

func (m *MemoryRegistry) PutPreferences(ctx context.Context, pushToken string, prefs Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdate != nil {
		return appErr.Registry("put preferences", m.FailUpdate)
	}
	m.prefs[pushToken] = prefs.Normalize()
	m.Updates++
	return nil
}

// PreferenceRows reports how many tokens have stored preferences.
func (m *MemoryRegistry) PreferenceRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prefs)
}

func (m *MemoryRegistry) withPrefs(d Device) Device {
	if p, ok := m.prefs[d.PushToken]; ok {
		d.Preferences = p.Normalize()
	} else {
		d.Preferences = DefaultPreferences()
	}
	return d
}
