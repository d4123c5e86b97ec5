// Package scheduler fires notification class runs on cron schedules. Each
// class gets one entry wrapped in SkipIfStillRunning, so a class never
// overlaps with itself inside this process.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albapepper/scoracle-push/internal/notifications"
)

// Runner is satisfied by *notifications.Engine.
type Runner interface {
	RunByName(ctx context.Context, name string, params notifications.RunParams) (notifications.Outcome, error)
}

// Scheduler owns a cron instance with one entry per scheduled class.
type Scheduler struct {
	c       *cron.Cron
	runner  Runner
	logger  *slog.Logger
	entries map[string]cron.EntryID
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates schedules (class name to cron spec) and registers them.
// Content classes cannot be scheduled because they need trigger-supplied
// title and body.
func New(runner Runner, schedules map[string]string, timezone string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc := time.UTC
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}

	cl := cronLogger{logger: logger.With("component", "scheduler")}
	s := &Scheduler{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID, len(schedules)),
	}

	names := make([]string, 0, len(schedules))
	for name := range schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		class, ok := notifications.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("schedule for unknown class %q", name)
		}
		if class.RequiresContent {
			return nil, fmt.Errorf("class %q needs content and cannot be scheduled", name)
		}
		id, err := s.c.AddJob(schedules[name], s.job(name))
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", name, err)
		}
		s.entries[name] = id
	}
	return s, nil
}

func (s *Scheduler) job(class string) cron.Job {
	return cron.FuncJob(func() {
		// Runs are not cancellable once started, so a background context
		// is all a job needs.
		out, err := s.runner.RunByName(context.Background(), class, notifications.RunParams{})
		if err != nil {
			s.logger.Error("Scheduled run failed", "class", class, "run_id", out.RunID, "error", err)
			return
		}
		s.logger.Info("Scheduled run finished", "class", class, "run_id", out.RunID,
			"targeted", out.Targeted, "sent", out.Success, "errors", out.Errors)
	})
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.c.Start()
	for _, name := range s.Classes() {
		next, _ := s.Next(name)
		s.logger.Info("Class scheduled", "class", name, "next", next)
	}
}

// Stop halts new firings and waits for in-flight runs or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with runs in flight")
	}
}

// Next returns the next firing time of class, if scheduled and started.
func (s *Scheduler) Next(class string) (time.Time, bool) {
	id, ok := s.entries[class]
	if !ok {
		return time.Time{}, false
	}
	return s.c.Entry(id).Next, true
}

// Classes lists the scheduled class names.
func (s *Scheduler) Classes() []string {
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("Cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("Cron "+msg, append(keysAndValues, "error", err)...)
}
