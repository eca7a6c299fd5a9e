package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/manthysbr/ocrflow/internal/core/ports"
	_ "github.com/marcboeker/go-duckdb"
)

type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the DuckDB database at path and applies
// the schema. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Ensure Repository implements Repository interface
var _ ports.Repository = (*Repository)(nil)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS settings (
		key        VARCHAR PRIMARY KEY,
		value      VARCHAR NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversions (
		id          VARCHAR PRIMARY KEY,
		task_id     VARCHAR NOT NULL,
		file_index  INTEGER NOT NULL,
		file_name   VARCHAR NOT NULL,
		status      VARCHAR NOT NULL,
		error_kind  VARCHAR NOT NULL DEFAULT '',
		error       VARCHAR NOT NULL DEFAULT '',
		output_dir  VARCHAR NOT NULL DEFAULT '',
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		duration_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_task ON conversions (task_id)`,
}

func (r *Repository) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
