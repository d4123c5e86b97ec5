package notifications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RunRecorder persists run outcomes for later inspection.
type RunRecorder interface {
	Record(ctx context.Context, out Outcome) error
	Recent(ctx context.Context, limit int) ([]Outcome, error)
}

// DB is the subset of *pgxpool.Pool the run store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RunStore writes outcomes to notification_runs via the prepared
// statements registered by internal/db.
type RunStore struct {
	db DB
}

// NewRunStore wraps a pool.
func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

// Record inserts one outcome row.
func (s *RunStore) Record(ctx context.Context, out Outcome) error {
	_, err := s.db.Exec(ctx, "insert_notification_run",
		out.RunID, out.Class, out.Targeted, out.Success, out.Errors, out.Batches,
		out.StartedAt, out.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, "recent_notification_runs", limit)
	if err != nil {
		return nil, fmt.Errorf("recent notification runs: %w", err)
	}
	defer rows.Close()

	var runs []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(
			&o.RunID, &o.Class, &o.Targeted, &o.Success, &o.Errors, &o.Batches,
			&o.StartedAt, &o.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification run: %w", err)
		}
		runs = append(runs, o)
	}
	return runs, rows.Err()
}
