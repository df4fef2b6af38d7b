package bunx

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// systemTables are created on startup if absent. Statements are
// idempotent so RunMigrations can be called on every boot.
var systemTables = []string{
	`CREATE TABLE IF NOT EXISTS "_collections" (
		"id"          TEXT PRIMARY KEY NOT NULL,
		"name"        TEXT UNIQUE NOT NULL,
		"type"        TEXT NOT NULL DEFAULT 'base',
		"list_rule"   TEXT,
		"view_rule"   TEXT,
		"create_rule" TEXT,
		"update_rule" TEXT,
		"delete_rule" TEXT,
		"created_at"  TEXT NOT NULL,
		"updated_at"  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS "_fields" (
		"id"            TEXT PRIMARY KEY NOT NULL,
		"collection_id" TEXT NOT NULL REFERENCES "_collections" ("id") ON DELETE CASCADE,
		"name"          TEXT NOT NULL,
		"type"          TEXT NOT NULL,
		"required"      BOOLEAN NOT NULL DEFAULT FALSE,
		"options"       TEXT NOT NULL DEFAULT '{}',
		"created_at"    TEXT NOT NULL,
		"updated_at"    TEXT NOT NULL,
		UNIQUE ("collection_id", "name")
	)`,
	`CREATE TABLE IF NOT EXISTS "_admins" (
		"id"            TEXT PRIMARY KEY NOT NULL,
		"email"         TEXT UNIQUE NOT NULL,
		"password_hash" TEXT NOT NULL,
		"created_at"    TEXT NOT NULL,
		"updated_at"    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS "idx_fields_collection" ON "_fields" ("collection_id")`,
}

// RunMigrations ensures the system tables exist and have the expected
// shape. User tables are managed at runtime by the schema registry, not
// here.
func RunMigrations(ctx context.Context, db *bun.DB) error {
	return RunInTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range systemTables {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply system migration: %w", err)
			}
		}
		return nil
	})
}
