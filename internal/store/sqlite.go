package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parleychat/parley/internal/model/chat"
)

// SQLite keeps the session blob in a single-row key/value table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema
// exists. Parent directories are created if needed.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS state (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Load reads the stored collection. A missing row or a blob that no longer
// parses yields an empty collection, never an error.
func (s *SQLite) Load(ctx context.Context) (chat.Collection, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", StateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Collection{}, nil
	}
	if err != nil {
		return chat.Collection{}, fmt.Errorf("reading state row: %w", err)
	}

	var col chat.Collection
	if err := json.Unmarshal(raw, &col); err != nil {
		log.Printf("[store] discarding malformed state blob: %v", err)
		return chat.Collection{}, nil
	}
	return col, nil
}

// Save serializes the collection and upserts it under the fixed key.
func (s *SQLite) Save(ctx context.Context, col chat.Collection) error {
	raw, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("encoding state blob: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		StateKey, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing state row: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
