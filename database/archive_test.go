package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/rag-workbench/config"
	"github.com/fabfab/rag-workbench/domain"
)

func TestArchiveRequiresPool(t *testing.T) {
	archive := NewChunkArchive(nil, nil)

	assert.Error(t, archive.Record(context.Background(), domain.IngestionRecord{SHA256: "abc"}))
	assert.Error(t, archive.Purge(context.Background()))
	assert.Error(t, EnsureArchiveSchema(context.Background(), nil))
}

func TestConnectionsRejectEmptyTargets(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "")
	assert.Error(t, err)

	_, err = NewNeo4jDriver(context.Background(), "", "neo4j", "password")
	assert.Error(t, err)
}

func TestArchiveRoundTrip(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration checks")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPostgresPool(ctx, cfg.PostgresDSN)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, EnsureArchiveSchema(ctx, pool))

	logger, _ := test.NewNullLogger()
	archive := NewChunkArchive(pool, logger)
	record := domain.IngestionRecord{
		SHA256:  "test-" + uuid.NewString(),
		Summary: domain.ChunkSummary{Filename: "it.pdf", TotalChunks: 1, TotalCharacters: 5, Strategy: "text_layer"},
		Chunks: []domain.DocumentChunk{{
			ID:       "it.pdf_0",
			Content:  "hello",
			Metadata: domain.ChunkMetadata{ChunkIndex: 0, PageNumber: 1, SourceInfo: "it.pdf - Page 1"},
		}},
	}

	require.NoError(t, archive.Record(ctx, record))
	require.NoError(t, archive.Record(ctx, record))

	var chunks int
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ingested_chunks c
		JOIN ingested_documents d ON d.id = c.document_id
		WHERE d.sha256 = $1
	`, record.SHA256).Scan(&chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)

	_, err = pool.Exec(ctx, "DELETE FROM ingested_documents WHERE sha256 = $1", record.SHA256)
	require.NoError(t, err)
}
