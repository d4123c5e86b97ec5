// Package maintenance runs periodic background tasks as Go tickers: clearing
// lapsed mute windows and purging old run-log rows.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the tasks use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	MuteSweepInterval time.Duration // Null out expired muted_until values
	PurgeInterval     time.Duration // Delete old notification_runs rows
	RunRetention      time.Duration // Age beyond which run rows are purged
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		MuteSweepInterval: 1 * time.Hour,
		PurgeInterval:     6 * time.Hour,
		RunRetention:      30 * 24 * time.Hour,
	}
}

// NewConfig overlays the non-zero arguments on DefaultConfig.
func NewConfig(sweepInterval, retention time.Duration) Config {
	cfg := DefaultConfig()
	if sweepInterval > 0 {
		cfg.MuteSweepInterval = sweepInterval
	}
	if retention > 0 {
		cfg.RunRetention = retention
	}
	return cfg
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, db DB, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"mute_sweep", cfg.MuteSweepInterval,
		"purge", cfg.PurgeInterval,
		"retention", cfg.RunRetention)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.MuteSweepInterval > 0 {
		t := time.NewTicker(cfg.MuteSweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { ClearExpiredMutes(ctx, db, logger) })
	}

	if cfg.PurgeInterval > 0 && cfg.RunRetention > 0 {
		t := time.NewTicker(cfg.PurgeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { PurgeRuns(ctx, db, time.Now().Add(-cfg.RunRetention), logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// ClearExpiredMutes sets muted_until to NULL where the window has lapsed.
// Filtering already treats a past value as unmuted, so this only keeps the
// column meaningful for operators.
func ClearExpiredMutes(ctx context.Context, db DB, logger *slog.Logger) (int64, error) {
	tag, err := db.Exec(ctx, "clear_expired_mutes")
	if err != nil {
		logger.Warn("Mute sweep: failed", "error", err)
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		logger.Info("Mute sweep: cleared expired mutes", "count", tag.RowsAffected())
	}
	return tag.RowsAffected(), nil
}

// PurgeRuns deletes run-log rows started before cutoff.
func PurgeRuns(ctx context.Context, db DB, cutoff time.Time, logger *slog.Logger) (int64, error) {
	tag, err := db.Exec(ctx, "purge_notification_runs", cutoff)
	if err != nil {
		logger.Warn("Run purge: failed", "error", err)
		return 0, err
	}
	if tag.RowsAffected() > 0 {
		logger.Info("Run purge: deleted old runs", "count", tag.RowsAffected(), "before", cutoff.UTC())
	}
	return tag.RowsAffected(), nil
}
