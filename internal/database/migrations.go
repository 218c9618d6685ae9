package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; schema_version holds the highest applied
// version. Each step runs in its own transaction.
var migrations = []struct {
	version int
	stmts   []string
}{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS pending_links (
				discord_id VARCHAR(32) PRIMARY KEY,
				code       VARCHAR(6) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS linked_accounts (
				uuid       VARCHAR(36) PRIMARY KEY,
				discord_id VARCHAR(32) NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS verified_users (
				discord_id VARCHAR(32) PRIMARY KEY,
				verified   BOOLEAN NOT NULL DEFAULT FALSE
			)`,
		},
	},
	{
		// Codes must be unique across all pending links; the index lets the
		// issue transaction rely on a conflict instead of a racy count.
		version: 2,
		stmts: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS pending_links_code_key ON pending_links (code)`,
		},
	},
}

// expectedSchema is checked after migrations; a missing table or column is a
// fatal startup error.
var expectedSchema = map[string][]string{
	"pending_links":   {"discord_id", "code", "created_at"},
	"linked_accounts": {"uuid", "discord_id"},
	"verified_users":  {"discord_id", "verified"},
	"schema_version":  {"version"},
}

// Migrate brings the schema up to the current version.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INT PRIMARY KEY)`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	err = pool.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, pool, m.version, m.stmts); err != nil {
			return err
		}
		log.Info().Int("version", m.version).Msg("applied schema migration")
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, version int, stmts []string) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d: %w", version, err)
			}
		}
		// Single-row marker: replace whatever version was there.
		if _, err := tx.Exec(ctx, `DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("migration %d: clear version: %w", version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, version); err != nil {
			return fmt.Errorf("migration %d: record version: %w", version, err)
		}
		return nil
	})
}

// VerifySchema confirms every expected table and column exists. Called at
// startup after Migrate; failure means the store cannot be trusted.
func VerifySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for table, columns := range expectedSchema {
		rows, err := pool.Query(ctx, `
			SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1
		`, table)
		if err != nil {
			return fmt.Errorf("verify table %s: %w", table, err)
		}

		found := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("verify table %s: %w", table, err)
			}
			found[name] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("verify table %s: %w", table, err)
		}

		if len(found) == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}
		for _, col := range columns {
			if !found[col] {
				return fmt.Errorf("table %s is missing column %s", table, col)
			}
		}
	}

	log.Info().Msg("database schema verified")
	return nil
}
