package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CollectionTable is the sanitized Postgres identifier for a collection.
func CollectionTable(name string) string {
	return pgx.Identifier{"kb_" + name}.Sanitize()
}

// EnsureCollectionTable creates the pgvector table backing one collection.
func EnsureCollectionTable(ctx context.Context, pool *pgxpool.Pool, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("collection name is empty")
	}
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	table := CollectionTable(name)
	index := pgx.Identifier{"kb_" + name + "_embedding_idx"}.Sanitize()

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			filename TEXT NOT NULL,
			chunk_index INT NOT NULL,
			topics TEXT[] NOT NULL DEFAULT '{}',
			payload JSONB NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops)", index, table),
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}

// DropCollectionTable removes a collection's table. It reports whether the
// table existed.
func DropCollectionTable(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	if pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	var exists bool
	if err := pool.QueryRow(ctx, "SELECT to_regclass($1::text) IS NOT NULL", CollectionTable(name)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check collection table: %w", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+CollectionTable(name)); err != nil {
		return false, fmt.Errorf("drop collection table: %w", err)
	}
	return exists, nil
}

// SQLiteCollectionTable is the quoted SQLite identifier for a collection.
func SQLiteCollectionTable(name string) string {
	return `"kb_` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// EnsureSQLiteCollection creates the registry and the table backing one
// collection. Re-creating with a different dimension is an error.
func EnsureSQLiteCollection(ctx context.Context, db *sql.DB, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("collection name is empty")
	}
	if db == nil {
		return fmt.Errorf("sqlite db is nil")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kb_collections (
			name TEXT PRIMARY KEY,
			vector_size INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			payload TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`, SQLiteCollectionTable(name)),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	var existing int
	err := db.QueryRowContext(ctx, "SELECT vector_size FROM kb_collections WHERE name = ?", name).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.ExecContext(ctx, "INSERT INTO kb_collections(name, vector_size) VALUES(?, ?)", name, dimension); err != nil {
			return fmt.Errorf("register collection: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read collection registry: %w", err)
	case existing != dimension:
		return fmt.Errorf("collection %s has vector size %d, not %d", name, existing, dimension)
	}
	return nil
}
