package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RosterEntry is one bib -> display name pair.
type RosterEntry struct {
	BibNumber int
	Name      string
}

// ReplaceRoster atomically replaces the roster snapshot with the given
// entries. The roster has no bearing on queue correctness, so a failed
// replace leaves the previous snapshot untouched (transaction rollback).
func (s *Store) ReplaceRoster(ctx context.Context, entries []RosterEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace roster: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM roster`); err != nil {
		return fmt.Errorf("replace roster: clear: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO roster (bib_number, name)
			VALUES (?, ?)
			ON CONFLICT(bib_number) DO UPDATE SET name = excluded.name
		`, e.BibNumber, e.Name); err != nil {
			return fmt.Errorf("replace roster: insert bib %d: %w", e.BibNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace roster: commit: %w", err)
	}

	return nil
}

// RosterName returns the display name for a bib, or "" if unknown.
func (s *Store) RosterName(ctx context.Context, bib int) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM roster WHERE bib_number = ?
	`, bib).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("roster name: %w", err)
	}
	return name, nil
}

// RosterCount returns the number of entries in the snapshot.
func (s *Store) RosterCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roster`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("roster count: %w", err)
	}
	return count, nil
}
