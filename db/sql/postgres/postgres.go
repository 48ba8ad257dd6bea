// Package postgres persists users and request templates with lib/pq.
package postgres

import (
	"context"
	"database/sql"
)

// Schema creates the tables used by the repositories. Every statement is
// idempotent so it can run on each start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    user_name TEXT NOT NULL,
    email TEXT,
    password_hash BYTEA NOT NULL,
    roles TEXT[] NOT NULL DEFAULT '{}',
    sentiment_analysis BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT users_user_name_key UNIQUE (user_name)
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS templates (
    name TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    placeholders TEXT[]
)`,
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	return ApplyMigrations(ctx, db, Schema...)
}
