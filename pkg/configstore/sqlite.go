package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config_fields (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// SQLiteConfig contains configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is how long to wait on a locked database.
	BusyTimeout time.Duration
}

// SQLiteStore persists fields in a SQLite table, one row per field.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and if necessary creates) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, newStorageError("sqlite", "open", errors.New("path is required"))
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, newStorageError("sqlite", "open", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}
	// A single connection keeps ":memory:" databases coherent and avoids
	// writer contention; the table is tiny.
	db.SetMaxOpenConns(1)

	if cfg.WALMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, newStorageError("sqlite", "enable_wal", err)
		}
	}
	if cfg.BusyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, newStorageError("sqlite", "set_busy_timeout", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, newStorageError("sqlite", "create_schema", err)
	}

	logger := slog.Default().With("component", "configstore.sqlite")
	logger.Info("SQLite config store initialized", "path", cfg.Path, "wal_mode", cfg.WALMode)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// GetField implements Store.
func (s *SQLiteStore) GetField(ctx context.Context, name string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config_fields WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newStorageError("sqlite", "get", err)
	}
	return json.RawMessage(value), nil
}

// SetField implements Store.
func (s *SQLiteStore) SetField(ctx context.Context, name string, value json.RawMessage) error {
	if err := validValue("sqlite", value); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config_fields (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, string(value), time.Now().UTC())
	if err != nil {
		return newStorageError("sqlite", "set", err)
	}
	return nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
