package repository

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(255) NOT NULL UNIQUE,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sync_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		sync_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id BIGSERIAL PRIMARY KEY,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		number INTEGER NOT NULL CHECK (number > 0 AND number < 10000),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_course_number ON lessons(course_id, number)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sync_status TEXT NOT NULL DEFAULT 'pending',
		sync_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		number INTEGER NOT NULL CHECK (number > 0 AND number < 10000),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_course_number ON lessons(course_id, number)`,
}

// pgmq queues are only available on Postgres with the extension installed.
var pgmqSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgmq`,
}

// Migrate creates the catalog schema. On Postgres, any queues given are
// created with pgmq as well.
func Migrate(ctx context.Context, db *sql.DB, driver string, queues ...string) error {
	var stmts []string
	switch driver {
	case DriverPostgres:
		stmts = postgresSchema
	case DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if driver != DriverPostgres || len(queues) == 0 {
		return nil
	}
	for _, stmt := range pgmqSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate pgmq: %w", err)
		}
	}
	for _, q := range queues {
		if _, err := db.ExecContext(ctx, "SELECT pgmq.create($1)", q); err != nil {
			return fmt.Errorf("create queue %s: %w", q, err)
		}
	}
	return nil
}
