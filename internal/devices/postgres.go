package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	appErr "github.com/albapepper/scoracle-push/internal/errors"
)

// DB is the subset of *pgxpool.Pool the registry uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRegistry reads and writes the devices and device_preferences
// tables. Filters are rendered to SQL so selection happens server-side.
type PostgresRegistry struct {
	db DB
}

// NewPostgresRegistry wraps a pool. Preference statements rely on the
// prepared statements registered by internal/db.
func NewPostgresRegistry(db DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const selectDevices = `
	SELECT d.user_id, d.push_token, d.platform, d.is_active,
	       d.last_active_at, d.last_reminder_sent_at, d.muted_until,
	       p.preferences
	FROM devices d
	LEFT JOIN device_preferences p ON p.push_token = d.push_token
	WHERE `

func (r *PostgresRegistry) FindCandidates(ctx context.Context, filter Filter) ([]Device, error) {
	if err := filter.Validate(); err != nil {
		return nil, appErr.Registry("find candidates", err)
	}
	where, args := filter.SQL(1)
	rows, err := r.db.Query(ctx, selectDevices+where, args...)
	if err != nil {
		return nil, appErr.Registry("find candidates", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var (
			d   Device
			raw []byte
		)
		if err := rows.Scan(
			&d.UserID, &d.PushToken, &d.Platform, &d.IsActive,
			&d.LastActiveAt, &d.LastReminderSentAt, &d.MutedUntil,
			&raw,
		); err != nil {
			return nil, appErr.Registry("scan device", err)
		}
		d.Preferences = decodePreferences(raw)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Registry("find candidates", err)
	}
	return out, nil
}

// UpdateFields issues one UPDATE keyed by the full user id list, so the
// write either applies to every matching row or fails as a whole.
func (r *PostgresRegistry) UpdateFields(ctx context.Context, userIDs []string, fields Fields) error {
	return r.update(ctx, ColUserID, userIDs, fields)
}

func (r *PostgresRegistry) UpdateDevices(ctx context.Context, pushTokens []string, fields Fields) error {
	return r.update(ctx, ColPushToken, pushTokens, fields)
}

func (r *PostgresRegistry) update(ctx context.Context, key Column, keys []string, fields Fields) error {
	if len(keys) == 0 || fields.empty() {
		return nil
	}
	sql, args := buildUpdate(key, keys, fields)
	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return appErr.Registry("update fields", err)
	}
	return nil
}

func buildUpdate(key Column, keys []string, fields Fields) (string, []any) {
	args := []any{keys}
	sets := make([]string, 0, 4)
	if fields.LastActiveAt != nil {
		args = append(args, *fields.LastActiveAt)
		sets = append(sets, fmt.Sprintf("last_active_at = $%d", len(args)))
	}
	if fields.LastReminderSentAt != nil {
		args = append(args, *fields.LastReminderSentAt)
		// GREATEST skips NULLs, so a first write stores the new value.
		sets = append(sets, fmt.Sprintf("last_reminder_sent_at = GREATEST(last_reminder_sent_at, $%d)", len(args)))
	}
	switch {
	case fields.ClearMute:
		sets = append(sets, "muted_until = NULL")
	case fields.MutedUntil != nil:
		args = append(args, *fields.MutedUntil)
		sets = append(sets, fmt.Sprintf("muted_until = $%d", len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	return "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE " + string(key) + " = ANY($1)", args
}

func (r *PostgresRegistry) GetPreferences(ctx context.Context, pushToken string) (Preferences, bool, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, "get_device_preferences", pushToken).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultPreferences(), false, nil
	}
	if err != nil {
		return nil, false, appErr.Registry("get preferences", err)
	}
	return decodePreferences(raw), true, nil
}

func (r *PostgresRegistry) PutPreferences(ctx context.Context, pushToken string, prefs Preferences) error {
	raw, err := json.Marshal(prefs.Normalize())
	if err != nil {
		return appErr.Registry("encode preferences", err)
	}
	if _, err := r.db.Exec(ctx, "upsert_device_preferences", pushToken, raw); err != nil {
		return appErr.Registry("put preferences", err)
	}
	return nil
}
