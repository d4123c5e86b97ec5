package devices

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	appErr "github.com/albapepper/scoracle-push/internal/errors"
)

// DefaultMuteDuration applies when a mute request carries no usable hours.
const DefaultMuteDuration = 24 * time.Hour

// maxMuteHours caps a requested window at roughly ten years so the
// duration cannot overflow.
const maxMuteHours = 24 * 365 * 10

// Service handles the client-initiated single-device writes: heartbeats,
// mute windows and preference toggles.
type Service struct {
	registry Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service over registry.
func NewService(registry Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordHeartbeat stamps last_active_at for every device of userID.
func (s *Service) RecordHeartbeat(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return appErr.Validation("userId is required")
	}
	now := s.now().UTC()
	if err := s.registry.UpdateFields(ctx, []string{userID}, Fields{LastActiveAt: &now}); err != nil {
		s.logger.Warn("Heartbeat write failed", "user_id", userID, "error", err)
		return appErr.Registry("record heartbeat", err)
	}
	return nil
}

// Mute opens a mute window for userID and returns its end. hours is the
// raw decoded request value; anything other than a positive number falls
// back to DefaultMuteDuration.
func (s *Service) Mute(ctx context.Context, userID string, hours any) (time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return time.Time{}, appErr.Validation("userId is required")
	}
	d := DefaultMuteDuration
	if h, ok := positiveHours(hours); ok {
		d = time.Duration(h * float64(time.Hour))
	}
	until := s.now().UTC().Add(d)
	if err := s.registry.UpdateFields(ctx, []string{userID}, Fields{MutedUntil: &until}); err != nil {
		s.logger.Warn("Mute write failed", "user_id", userID, "error", err)
		return time.Time{}, appErr.Registry("mute", err)
	}
	s.logger.Info("Device muted", "user_id", userID, "muted_until", until)
	return until, nil
}

// Unmute clears the mute window for userID.
func (s *Service) Unmute(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return appErr.Validation("userId is required")
	}
	if err := s.registry.UpdateFields(ctx, []string{userID}, Fields{ClearMute: true}); err != nil {
		s.logger.Warn("Unmute write failed", "user_id", userID, "error", err)
		return appErr.Registry("unmute", err)
	}
	s.logger.Info("Device unmuted", "user_id", userID)
	return nil
}

// GetPreferences returns the stored toggles for pushToken, or the defaults
// when the token has never written any.
func (s *Service) GetPreferences(ctx context.Context, pushToken string) (Preferences, error) {
	pushToken = strings.TrimSpace(pushToken)
	if pushToken == "" {
		return nil, appErr.Validation("token is required")
	}
	prefs, _, err := s.registry.GetPreferences(ctx, pushToken)
	if err != nil {
		return nil, appErr.Registry("get preferences", err)
	}
	return prefs.Normalize(), nil
}

// SetPreferences sanitizes input and persists it for pushToken. input must
// be a decoded JSON object.
func (s *Service) SetPreferences(ctx context.Context, pushToken string, input any) (Preferences, error) {
	pushToken = strings.TrimSpace(pushToken)
	if pushToken == "" {
		return nil, appErr.Validation("token is required")
	}
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, appErr.Validation("preferences must be an object")
	}
	prefs := SanitizePreferences(obj)
	if err := s.registry.PutPreferences(ctx, pushToken, prefs); err != nil {
		s.logger.Warn("Preference write failed", "error", err)
		return nil, appErr.Registry("set preferences", err)
	}
	return prefs, nil
}

func positiveHours(v any) (float64, bool) {
	var h float64
	switch x := v.(type) {
	case float64:
		h = x
	case int:
		h = float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		h = f
	default:
		return 0, false
	}
	if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, false
	}
	return min(h, maxMuteHours), true
}
