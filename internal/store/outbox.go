package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReadOutbox returns all pending payloads in insertion order.
// Returns an empty slice (not nil) if the outbox is empty.
func (s *Store) ReadOutbox(ctx context.Context) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM outbox ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	defer rows.Close()

	payloads := []json.RawMessage{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("read outbox: scan: %w", err)
		}
		payloads = append(payloads, json.RawMessage(payload))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outbox: iterate: %w", err)
	}

	return payloads, nil
}

// ReplaceOutbox atomically replaces the entire outbox with the given
// payloads, preserving slice order as insertion order. Passing an empty
// slice empties the outbox.
//
// Whole-queue replacement keeps the write path identical for enqueue,
// normalization fixups, and post-sync pruning: the caller always persists
// the full normalized queue.
func (s *Store) ReplaceOutbox(ctx context.Context, payloads [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace outbox: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox`); err != nil {
		return fmt.Errorf("replace outbox: clear: %w", err)
	}

	for _, payload := range payloads {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (payload) VALUES (?)
		`, string(payload)); err != nil {
			return fmt.Errorf("replace outbox: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace outbox: commit: %w", err)
	}

	return nil
}

// OutboxLen returns the number of pending payloads.
func (s *Store) OutboxLen(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("outbox len: %w", err)
	}
	return count, nil
}
