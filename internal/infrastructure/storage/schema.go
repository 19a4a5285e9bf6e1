package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		post_id         TEXT PRIMARY KEY,
		source          TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		url             TEXT NOT NULL DEFAULT '',
		published_at    TIMESTAMPTZ NOT NULL,
		fetched_at      TIMESTAMPTZ NOT NULL,
		simhash         BIGINT NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'pending',
		relevance       BOOLEAN,
		relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		category        TEXT,
		subcategory     TEXT,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		error_count     INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT,
		delivered       BOOLEAN NOT NULL DEFAULT FALSE,
		claimed_at      TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_fetched_at ON documents (fetched_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_published_at ON documents (published_at)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL DEFAULT '',
		feed_url           TEXT NOT NULL,
		priority           INTEGER NOT NULL DEFAULT 0,
		health             TEXT NOT NULL DEFAULT 'active',
		consecutive_errors INTEGER NOT NULL DEFAULT 0,
		last_success_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS ai_requests (
		id               TEXT PRIMARY KEY,
		stage            TEXT NOT NULL,
		model            TEXT NOT NULL,
		key_label        TEXT NOT NULL DEFAULT '',
		document_count   INTEGER NOT NULL DEFAULT 0,
		prompt_chars     INTEGER NOT NULL DEFAULT 0,
		response_chars   INTEGER NOT NULL DEFAULT 0,
		estimated_tokens INTEGER NOT NULL DEFAULT 0,
		outcome          TEXT NOT NULL,
		error            TEXT,
		latency_ms       BIGINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_requests_created_at ON ai_requests (created_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
