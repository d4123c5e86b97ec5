package devices

import (
	"encoding/json"
	"math"
	"strings"
)

// Preference keys. The set is fixed; anything else is dropped on write.
const (
	PrefReminders   = "reminders"
	PrefNewArticles = "new_articles"
	PrefNewPodcasts = "new_podcasts"
	PrefNewVideos   = "new_videos"
	PrefLiveEvents  = "live_events"
)

// PreferenceKeys lists the fixed key set in display order.
var PreferenceKeys = []string{
	PrefReminders,
	PrefNewArticles,
	PrefNewPodcasts,
	PrefNewVideos,
	PrefLiveEvents,
}

// Preferences maps each fixed key to an on/off toggle.
type Preferences map[string]bool

// DefaultPreferences returns the all-true mapping.
func DefaultPreferences() Preferences {
	p := make(Preferences, len(PreferenceKeys))
	for _, k := range PreferenceKeys {
		p[k] = true
	}
	return p
}

// IsPreferenceKey reports whether key belongs to the fixed set.
func IsPreferenceKey(key string) bool {
	for _, k := range PreferenceKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Enabled reports the toggle for key. Missing keys default to true.
func (p Preferences) Enabled(key string) bool {
	v, ok := p[key]
	return !ok || v
}

// Normalize returns a copy holding exactly the fixed key set, filling
// missing keys with true.
func (p Preferences) Normalize() Preferences {
	out := DefaultPreferences()
	for _, k := range PreferenceKeys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}

// SanitizePreferences builds the stored mapping from untrusted client input:
// each fixed key takes the truthiness of its input value when present and
// true otherwise; unknown keys are ignored.
func SanitizePreferences(input map[string]any) Preferences {
	out := DefaultPreferences()
	for _, k := range PreferenceKeys {
		if v, ok := input[k]; ok {
			out[k] = truthy(v)
		}
	}
	return out
}

// truthy follows JavaScript Boolean() coercion for JSON-decoded values.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case json.Number:
		f, err := x.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case string:
		return x != ""
	default:
		// objects and arrays are truthy
		return true
	}
}

// decodePreferences parses a stored JSONB document. Corrupt documents fall
// back to the defaults.
func decodePreferences(raw []byte) Preferences {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return DefaultPreferences()
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return DefaultPreferences()
	}
	return SanitizePreferences(stored)
}
