package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the tables used by the place catalog and feature flags.
// Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS places (
		id               TEXT PRIMARY KEY,
		region           TEXT NOT NULL DEFAULT '',
		name             TEXT NOT NULL,
		rating           DOUBLE PRECISION,
		lat              DOUBLE PRECISION NOT NULL,
		lon              DOUBLE PRECISION NOT NULL,
		duration_minutes INTEGER,
		category         TEXT NOT NULL DEFAULT '',
		day_part         TEXT NOT NULL DEFAULT '',
		hours            JSONB NOT NULL DEFAULT '{}'::jsonb,
		route_url        TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS places_region_idx ON places (region, id)`,
	`CREATE TABLE IF NOT EXISTS feature_flags (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
