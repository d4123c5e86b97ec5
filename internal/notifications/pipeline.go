package notifications

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-push/internal/devices"
	appErr "github.com/albapepper/scoracle-push/internal/errors"
	"github.com/albapepper/scoracle-push/internal/gateway"
	"github.com/albapepper/scoracle-push/internal/metrics"
)

// Engine runs notification classes against a registry and a gateway.
type Engine struct {
	registry devices.Registry
	gateway  gateway.Client
	recorder RunRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires an engine. recorder may be nil.
func NewEngine(registry devices.Registry, gw gateway.Client, recorder RunRecorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		gateway:  gw,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RunByName looks up a class and runs it.
func (e *Engine) RunByName(ctx context.Context, name string, params RunParams) (Outcome, error) {
	class, ok := Lookup(name)
	if !ok {
		return Outcome{Class: name}, appErr.NotFound("notification class %q", name)
	}
	return e.Run(ctx, class, params)
}

// Run executes one pass of class. Gateway failures are tallied in the
// outcome and never abort the run; registry failures abort it and are
// returned. A run is not cancellable once started: ctx values are kept
// but its cancellation is ignored.
func (e *Engine) Run(ctx context.Context, class Class, params RunParams) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	now := e.now().UTC()
	out := Outcome{RunID: uuid.NewString(), Class: class.Name, StartedAt: now}
	logger := e.logger.With("class", class.Name, "run_id", out.RunID)

	if err := validateRun(class, params); err != nil {
		metrics.DispatchRuns.WithLabelValues(class.Name, "invalid").Inc()
		logger.Warn("Rejected notification run", "error", err)
		return out, err
	}

	// 1. Query candidates server-side
	candidates, err := e.registry.FindCandidates(ctx, candidateFilter(class, now))
	if err != nil {
		metrics.DispatchRuns.WithLabelValues(class.Name, "registry_error").Inc()
		logger.Error("Candidate query failed", "error", err)
		return out, appErr.Registry("find candidates", err)
	}
	if len(candidates) == 0 {
		logger.Info("No candidate devices")
		return e.finish(ctx, out, logger), nil
	}

	// 2. Throttle, mute and preference filters
	targets := eligible(class, candidates, now)
	out.Targeted = len(targets)
	if len(targets) == 0 {
		logger.Info("All candidates filtered", "candidates", len(candidates))
		return e.finish(ctx, out, logger), nil
	}

	// 3. Build and dispatch
	msgs := make([]gateway.Message, 0, len(targets))
	for _, d := range targets {
		msgs = append(msgs, class.Build(d, params))
	}
	e.dispatch(ctx, class.Name, msgs, &out, logger)

	// 4. Stamp throttle state for every target regardless of batch outcome.
	// Keyed by token: a user's filtered-out devices were not messaged.
	if class.Throttled() {
		if err := e.registry.UpdateDevices(ctx, pushTokens(targets), devices.Fields{LastReminderSentAt: &now}); err != nil {
			metrics.DispatchRuns.WithLabelValues(class.Name, "registry_error").Inc()
			logger.Error("Throttle write-back failed",
				"targeted", out.Targeted, "sent", out.Success, "errors", out.Errors, "error", err)
			return out, appErr.Registry("update last reminder", err)
		}
	}

	return e.finish(ctx, out, logger), nil
}

func (e *Engine) finish(ctx context.Context, out Outcome, logger *slog.Logger) Outcome {
	out.FinishedAt = e.now().UTC()

	metrics.DispatchRuns.WithLabelValues(out.Class, "ok").Inc()
	metrics.DispatchMessages.WithLabelValues(out.Class, "targeted").Add(float64(out.Targeted))
	metrics.DispatchMessages.WithLabelValues(out.Class, "sent").Add(float64(out.Success))
	metrics.DispatchMessages.WithLabelValues(out.Class, "errored").Add(float64(out.Errors))
	metrics.DispatchDuration.WithLabelValues(out.Class).Observe(out.Duration().Seconds())

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, out); err != nil {
			logger.Warn("Failed to record notification run", "error", err)
		}
	}

	logger.Info("Notification run complete",
		"targeted", out.Targeted, "sent", out.Success, "errors", out.Errors,
		"batches", out.Batches, "duration", out.Duration().Round(time.Millisecond))
	return out
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func validateRun(class Class, p RunParams) error {
	if class.Build == nil {
		return appErr.Validation("class %q has no message builder", class.Name)
	}
	if class.PreferenceKey != "" && !devices.IsPreferenceKey(class.PreferenceKey) {
		return appErr.Validation("class %q gates on unknown preference %q", class.Name, class.PreferenceKey)
	}
	if class.RequiresContent && (strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Body) == "") {
		return appErr.Validation("title and body are required for %s", class.Name)
	}
	return nil
}

// candidateFilter is the server-side selection: active devices, optionally
// idle past the inactivity cutoff.
func candidateFilter(class Class, now time.Time) devices.Filter {
	f := devices.Filter{devices.Eq(devices.ColIsActive, true)}
	if class.InactivityWindow > 0 {
		f = f.And(devices.Lt(devices.ColLastActiveAt, inactivityCutoff(class, now)))
	}
	return f
}

// eligible applies the in-process filters in order: throttle, mute,
// preference. Order of the input is preserved.
func eligible(class Class, candidates []devices.Device, now time.Time) []devices.Device {
	out := make([]devices.Device, 0, len(candidates))
	for _, d := range candidates {
		if !d.IsActive || d.PushToken == "" {
			continue
		}
		if class.Throttled() && d.LastReminderSentAt != nil && now.Sub(*d.LastReminderSentAt) < class.ThrottleWindow {
			continue
		}
		if class.RespectMute && d.Muted(now) {
			continue
		}
		if class.PreferenceKey != "" && !d.Preferences.Enabled(class.PreferenceKey) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func pushTokens(devs []devices.Device) []string {
	seen := make(map[string]struct{}, len(devs))
	tokens := make([]string, 0, len(devs))
	for _, d := range devs {
		if _, ok := seen[d.PushToken]; ok {
			continue
		}
		seen[d.PushToken] = struct{}{}
		tokens = append(tokens, d.PushToken)
	}
	return tokens
}
