// Package database opens the SQLite database shared by the valuation,
// draft and activity stores and creates their tables.
package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Builder renders SQL statements in the SQLite dialect.
func Builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

// Open connects to the SQLite database at dsn, enables foreign keys and
// runs Migrate.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database. Used by tests.
func OpenMemory(ctx context.Context) (*sqlx.DB, error) {
	return Open(ctx, "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite", 1)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS valuations (
		id               TEXT PRIMARY KEY,
		reference_number TEXT NOT NULL DEFAULT '',
		applicant        TEXT NOT NULL DEFAULT '',
		bank_name        TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		record           TEXT NOT NULL,
		version          INTEGER NOT NULL DEFAULT 1,
		created_by       TEXT NOT NULL,
		updated_by       TEXT NOT NULL,
		manager_remarks  TEXT NOT NULL DEFAULT '',
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL,
		submitted_at     DATETIME,
		decided_at       DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_valuations_status ON valuations (status, updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_valuations_created_by ON valuations (created_by, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS drafts (
		key        TEXT PRIMARY KEY,
		record     TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts (updated_at)`,
	`CREATE TABLE IF NOT EXISTS activity_entries (
		event_id            TEXT NOT NULL,
		event_type          TEXT NOT NULL,
		occurred_at         DATETIME NOT NULL,
		indexed_entity_type TEXT NOT NULL,
		indexed_entity_id   TEXT NOT NULL,
		entity_role         TEXT NOT NULL,
		actor               TEXT NOT NULL DEFAULT '',
		source_refs         TEXT NOT NULL DEFAULT '[]',
		summary             TEXT NOT NULL,
		category            TEXT NOT NULL,
		weight              TEXT NOT NULL,
		payload             TEXT,
		PRIMARY KEY (indexed_entity_type, indexed_entity_id, occurred_at, event_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_entity_time
		ON activity_entries (indexed_entity_type, indexed_entity_id, occurred_at DESC)`,
}

// Migrate creates every table and index that does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
