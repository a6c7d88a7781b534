package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/logging"
)

// ChunkArchive keeps a copy of every chunked document in Postgres, keyed by
// the content hash of the upload.
type ChunkArchive struct {
	pool   *pgxpool.Pool
	logger logrus.FieldLogger
}

func NewChunkArchive(pool *pgxpool.Pool, logger logrus.FieldLogger) *ChunkArchive {
	return &ChunkArchive{pool: pool, logger: logging.OrDefault(logger)}
}

// Record stores the chunks of one document. Re-recording identical content
// only refreshes the document row.
func (a *ChunkArchive) Record(ctx context.Context, record domain.IngestionRecord) (err error) {
	if a == nil || a.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if record.SHA256 == "" {
		return fmt.Errorf("ingestion record has no content hash")
	}

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				a.logger.WithError(rbErr).Warn("rollback archive transaction")
			}
		}
	}()

	docID, created, err := upsertDocument(ctx, tx, record)
	if err != nil {
		return err
	}

	if created {
		for _, chunk := range record.Chunks {
			if _, err = tx.Exec(ctx, `
				INSERT INTO ingested_chunks (id, document_id, chunk_key, chunk_index, page_number, source_info, content)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.New(), docID, chunk.ID, chunk.Metadata.ChunkIndex, chunk.Metadata.PageNumber, chunk.Metadata.SourceInfo, chunk.Content); err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Metadata.ChunkIndex, err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"document_id": docID.String(),
		"filename":    record.Summary.Filename,
		"chunks":      len(record.Chunks),
		"new":         created,
	}).Info("archived ingestion")
	return nil
}

// Purge removes every archived document and chunk.
func (a *ChunkArchive) Purge(ctx context.Context) error {
	if a == nil || a.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if _, err := a.pool.Exec(ctx, "TRUNCATE ingested_chunks, ingested_documents"); err != nil {
		return fmt.Errorf("truncate archive tables: %w", err)
	}
	return nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, record domain.IngestionRecord) (uuid.UUID, bool, error) {
	var docID uuid.UUID
	err := tx.QueryRow(ctx, "SELECT id FROM ingested_documents WHERE sha256 = $1", record.SHA256).Scan(&docID)
	if err == nil {
		if _, err := tx.Exec(ctx, `
			UPDATE ingested_documents
			SET filename = $2,
			    updated_at = NOW()
			WHERE id = $1
		`, docID, record.Summary.Filename); err != nil {
			return uuid.Nil, false, fmt.Errorf("update document: %w", err)
		}
		return docID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	docID = uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO ingested_documents (id, filename, sha256, strategy, total_chunks, total_characters)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, docID, record.Summary.Filename, record.SHA256, record.Summary.Strategy, record.Summary.TotalChunks, record.Summary.TotalCharacters); err != nil {
		return uuid.Nil, false, fmt.Errorf("insert document: %w", err)
	}
	return docID, true, nil
}
