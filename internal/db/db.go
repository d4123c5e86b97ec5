// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-push/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statements maps prepared statement names to SQL. Exported so callers and
// tests can see which names are available on every pooled connection.
var Statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Preferences (keyed by push token)
	"get_device_preferences": "SELECT preferences FROM device_preferences WHERE push_token = $1",
	"upsert_device_preferences": `INSERT INTO device_preferences (push_token, preferences)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (push_token) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = NOW()`,

	// Run log
	"insert_notification_run": `INSERT INTO notification_runs
		(run_id, class, targeted, sent, errors, batches, started_at, finished_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`,
	"recent_notification_runs": `SELECT run_id::text, class, targeted, sent, errors, batches, started_at, finished_at
		FROM notification_runs ORDER BY started_at DESC LIMIT $1`,

	// Maintenance
	"clear_expired_mutes":     "UPDATE devices SET muted_until = NULL, updated_at = NOW() WHERE muted_until IS NOT NULL AND muted_until <= NOW()",
	"purge_notification_runs": "DELETE FROM notification_runs WHERE started_at < $1",
}

// registerPreparedStatements registers all statements the API, engine and
// maintenance layers use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
