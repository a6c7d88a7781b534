package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var archiveSchema = []string{
	`CREATE TABLE IF NOT EXISTS ingested_documents (
		id UUID PRIMARY KEY,
		filename TEXT NOT NULL,
		sha256 TEXT UNIQUE NOT NULL,
		strategy TEXT NOT NULL,
		total_chunks INT NOT NULL,
		total_characters INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ingested_chunks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES ingested_documents(id) ON DELETE CASCADE,
		chunk_key TEXT NOT NULL,
		chunk_index INT NOT NULL,
		page_number INT NOT NULL,
		source_info TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(document_id, chunk_index)
	)`,
	"CREATE INDEX IF NOT EXISTS idx_ingested_chunks_document ON ingested_chunks(document_id)",
	"CREATE INDEX IF NOT EXISTS idx_ingested_documents_filename ON ingested_documents(filename)",
}

// EnsureArchiveSchema creates the ingestion archive tables when missing.
func EnsureArchiveSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	for _, stmt := range archiveSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}
