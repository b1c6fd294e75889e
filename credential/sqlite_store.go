package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore keeps the key in a settings table of the local database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the settings table if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, StorageKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && value == "") {
		return "", ErrNotSet
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		StorageKey, value)
	if err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, StorageKey); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}
