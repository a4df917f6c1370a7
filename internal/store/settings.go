package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Setting keys. These mirror the browser build's localStorage keys (minus the
// storage prefix) so that exported state maps one-to-one.
const (
	KeyAPIBase           = "api_base"
	KeyDeviceID          = "device_id"
	KeyOperator          = "operator"
	KeySeq               = "seq"
	KeyRosterRefreshedAt = "roster_at"
	KeyRosterGeneratedAt = "roster_generated_at"
)

// GetSetting returns the value for a key, or "" if the key is absent.
// Absence is not an error: settings are best-effort local state.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a key/value pair, replacing any existing value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// NextSeq atomically increments the persisted sequence counter and returns
// the new value. The counter is strictly monotonic: each value is handed out
// exactly once, even across process restarts.
//
// A missing or corrupt stored value counts as zero, so the first call after
// a fresh install (or a damaged settings row) returns 1.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("next seq: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var raw string
	err = tx.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = ?
	`, KeySeq).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("next seq: read: %w", err)
	}

	cur, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil || cur < 0 {
		cur = 0
	}
	next := cur + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, KeySeq, strconv.FormatInt(next, 10))
	if err != nil {
		return 0, fmt.Errorf("next seq: write: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("next seq: commit: %w", err)
	}

	return next, nil
}
