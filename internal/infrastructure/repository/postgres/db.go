package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS templates (
	id BIGSERIAL PRIMARY KEY,
	organization_id TEXT NOT NULL,
	sub_unit_id TEXT,
	name TEXT NOT NULL,
	document_type TEXT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	priority INTEGER NOT NULL DEFAULT 100,
	version INTEGER NOT NULL DEFAULT 1,
	matching_rules JSONB NOT NULL DEFAULT '[]'::jsonb,
	field_mappings JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (organization_id, name)
);

CREATE INDEX IF NOT EXISTS idx_templates_candidates ON templates(organization_id, active, priority, updated_at DESC);

CREATE TABLE IF NOT EXISTS samples (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	sub_unit_id TEXT,
	entry_id TEXT,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	template_id BIGINT REFERENCES templates(id) ON DELETE SET NULL,
	status TEXT NOT NULL,
	extraction_result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_entry ON samples(entry_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_samples_status ON samples(status);

CREATE TABLE IF NOT EXISTS extraction_logs (
	id BIGSERIAL PRIMARY KEY,
	sample_id TEXT NOT NULL REFERENCES samples(id) ON DELETE CASCADE,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	context JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extraction_logs_sample ON extraction_logs(sample_id, id DESC);

CREATE TABLE IF NOT EXISTS organization_quotas (
	organization_id TEXT NOT NULL,
	resource TEXT NOT NULL,
	used BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (organization_id, resource)
);
`

// EnsureSchema creates the pipeline tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
