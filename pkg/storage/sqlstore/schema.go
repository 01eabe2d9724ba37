package sqlstore

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const (
	itemsTable       = "items"
	connectionsTable = "connections"
)

var itemColumns = []string{
	"id",
	"owner_id",
	"kind",
	"content",
	"source_url",
	"title",
	"summary",
	"topics",
	"tags",
	"embedding",
	"status",
	"status_message",
	"step",
	"lease_token",
	"lease_expires_at",
	"created_at",
	"updated_at",
}

var connectionColumns = []string{
	"id",
	"owner_id",
	"low_id",
	"high_id",
	"similarity",
	"explanation",
	"method",
	"created_at",
	"updated_at",
}

// sqliteSchema and postgresSchema are append-only: new columns and indexes
// are added with IF NOT EXISTS statements so reopening an existing
// database is safe.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		topics TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		embedding BLOB,
		status TEXT NOT NULL,
		status_message TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL DEFAULT '',
		lease_token TEXT NOT NULL DEFAULT '',
		lease_expires_at INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS items_owner_status ON items (owner_id, status)`,
	`CREATE INDEX IF NOT EXISTS items_owner_created ON items (owner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		low_id TEXT NOT NULL,
		high_id TEXT NOT NULL,
		similarity REAL NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (low_id, high_id)
	)`,
	`CREATE INDEX IF NOT EXISTS connections_high ON connections (high_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		topics TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		embedding BYTEA,
		status TEXT NOT NULL,
		status_message TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL DEFAULT '',
		lease_token TEXT NOT NULL DEFAULT '',
		lease_expires_at BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS items_owner_status ON items (owner_id, status)`,
	`CREATE INDEX IF NOT EXISTS items_owner_created ON items (owner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		low_id TEXT NOT NULL,
		high_id TEXT NOT NULL,
		similarity DOUBLE PRECISION NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (low_id, high_id)
	)`,
	`CREATE INDEX IF NOT EXISTS connections_high ON connections (high_id)`,
}

// Migrate creates the tables and indexes for the driver's dialect.
func (d *Driver) Migrate(ctx context.Context) error {
	var stmts []string
	switch d.dialect {
	case dialect.SQLite:
		stmts = sqliteSchema
	case dialect.Postgres:
		stmts = postgresSchema
	default:
		return fmt.Errorf("unsupported dialect: %s", d.dialect)
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}
