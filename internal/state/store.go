// Package state is the host's persistence collaborator: a small key/value
// store over SQLite holding plain structured data (installed plugin
// bookkeeping, panel view-state snapshots), plus a debounced writer that
// coalesces write bursts into single persisted writes.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const DefaultMaxValueBytes = 1 << 20 // 1 MiB

// Store reads and writes JSON values in kv_store.
type Store struct {
	db            *sql.DB
	maxValueBytes int
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:            db,
		maxValueBytes: DefaultMaxValueBytes,
	}
}

// Get returns the stored value for key, or nil if the key is absent.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("key is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_store WHERE key = ?;", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key %q: %w", key, err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored value is invalid JSON for key=%q", key)
	}
	return json.RawMessage(raw), nil
}

// Update marshals value and upserts it under key.
func (s *Store) Update(ctx context.Context, key string, value any) error {
	if key == "" {
		return fmt.Errorf("key is empty")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for key %q: %w", key, err)
	}
	if len(data) > s.maxValueBytes {
		return fmt.Errorf("value for key %q exceeds max size (%d bytes)", key, s.maxValueBytes)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO kv_store(key, value, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value = excluded.value,
  updated_at = excluded.updated_at;
`, key, string(data), now)
	if err != nil {
		return fmt.Errorf("upsert key %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is empty")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?;", key); err != nil {
		return fmt.Errorf("delete key %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys, for the inspect report.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv_store ORDER BY key;")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
