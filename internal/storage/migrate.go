package storage

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL []byte

const schemaName = "schema.sql"

// ApplySchema applies the embedded schema once per content hash, recording it
// in the migrations table.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ensureMigrationTable(ctx, pool); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	hash := schemaHash()
	applied, err := isHashApplied(ctx, pool, hash)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if applied {
		return nil
	}
	if _, err := pool.Exec(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO migrations (name, hash) VALUES ($1,$2)`, schemaName, hash); err != nil {
		return fmt.Errorf("apply schema: record hash: %w", err)
	}
	return nil
}

func schemaHash() string {
	return fmt.Sprintf("%x", sha256.Sum256(schemaSQL))
}

func ensureMigrationTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS migrations (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	hash TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS migrations_name_hash_idx ON migrations(name, hash);
`)
	return err
}

func isHashApplied(ctx context.Context, pool *pgxpool.Pool, hash string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM migrations WHERE name=$1 AND hash=$2)`, schemaName, hash).Scan(&exists)
	return exists, err
}
