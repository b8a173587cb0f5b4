// Package db provides SQLite database access for Pushdeck.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pkoenig/pushdeck/internal/logging"
)

// DB wraps the SQL connection pool with schema management.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Options tune the connection pool.
type Options struct {
	// MaxConnections is the maximum number of open connections.
	MaxConnections int

	// BusyTimeoutMs is how long a connection waits on a locked database
	// before failing, in milliseconds.
	BusyTimeoutMs int
}

// DefaultOptions returns the default pool options.
func DefaultOptions() Options {
	return Options{
		MaxConnections: 10,
		BusyTimeoutMs:  5000,
	}
}

// Open opens the database at path, creating the file and its parent
// directory if needed.
func Open(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultOptions().MaxConnections
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = DefaultOptions().BusyTimeoutMs
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, opts.BusyTimeoutMs,
	)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxConnections)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{
		DB:     sqlDB,
		logger: logging.Component("db"),
	}, nil
}

// OpenInMemory opens a private in-memory database. Used by tests.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	// A single connection keeps every query on the same in-memory
	// instance; the pool keeps idle connections alive indefinitely.
	sqlDB.SetMaxOpenConns(1)

	return &DB{
		DB:     sqlDB,
		logger: logging.Component("db"),
	}, nil
}

// migrations are applied in order. PRAGMA user_version tracks how many
// have run, so past entries must never be edited, only appended to.
var migrations = []string{
	`
	CREATE TABLE servers (
		id         TEXT PRIMARY KEY,
		url        TEXT NOT NULL UNIQUE,
		is_default INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE subscriptions (
		id           TEXT PRIMARY KEY,
		server_id    TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		topic        TEXT NOT NULL,
		display_name TEXT,
		muted        INTEGER NOT NULL DEFAULT 0,
		last_sync    INTEGER,
		UNIQUE (server_id, topic)
	);

	CREATE TABLE notifications (
		id              TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
		remote_id       TEXT,
		title           TEXT NOT NULL DEFAULT '',
		message         TEXT NOT NULL DEFAULT '',
		priority        INTEGER NOT NULL DEFAULT 3,
		tags            TEXT NOT NULL DEFAULT '[]',
		timestamp       INTEGER NOT NULL,
		read            INTEGER NOT NULL DEFAULT 0,
		favorite        INTEGER NOT NULL DEFAULT 0,
		expanded        INTEGER NOT NULL DEFAULT 0,
		actions         TEXT NOT NULL DEFAULT '[]',
		attachments     TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX idx_notifications_topic
		ON notifications (subscription_id, timestamp DESC);

	CREATE UNIQUE INDEX idx_notifications_remote
		ON notifications (subscription_id, remote_id)
		WHERE remote_id IS NOT NULL;

	CREATE TABLE settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`,
}

// MigrateUp applies pending migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > len(migrations) {
		return 0, fmt.Errorf("database schema version %d is newer than this build supports", version)
	}

	applied := 0
	for i := version; i < len(migrations); i++ {
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		applied++
		db.logger.Debug().Int("version", i+1).Msg("applied migration")
	}

	return applied, nil
}

// Transaction runs fn inside a transaction, rolling back on error.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
