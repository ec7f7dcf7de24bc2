package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness/ports"
)

// LibSQLKVStore implements KVStore on the `memory` table of an embedded libsql database.
type LibSQLKVStore struct {
	db *sql.DB
}

// NewLibSQLKVStore creates a new LibSQL key/value store. The schema must already be migrated.
func NewLibSQLKVStore(db *sql.DB) *LibSQLKVStore {
	return &LibSQLKVStore{
		db: db,
	}
}

// Get loads the value for key.
func (s *LibSQLKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM memory WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key.
func (s *LibSQLKVStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO memory (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *LibSQLKVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// List returns every entry whose key starts with prefix, ordered by key.
func (s *LibSQLKVStore) List(ctx context.Context, prefix string) ([]ports.KVEntry, error) {
	query := `
		SELECT key, value, updated_at FROM memory
		WHERE substr(key, 1, ?) = ?
		ORDER BY key
	`

	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	defer rows.Close()

	var entries []ports.KVEntry
	for rows.Next() {
		var (
			entry     ports.KVEntry
			updatedAt int64
		)
		if err := rows.Scan(&entry.Key, &entry.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		// substr counts characters, not bytes; re-check on the Go side.
		if strings.HasPrefix(entry.Key, prefix) {
			entries = append(entries, entry)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// Ensure LibSQLKVStore implements the KVStore interface.
var _ ports.KVStore = (*LibSQLKVStore)(nil)
