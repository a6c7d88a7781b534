// Package knowledge mirrors chunked documents into Neo4j as a provenance
// graph: (:Document)-[:HAS_CHUNK]->(:Chunk)-[:ON_PAGE]->(:Page).
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/fabfab/rag-workbench/domain"
	"github.com/fabfab/rag-workbench/logging"
)

type GraphRecorder struct {
	driver neo4j.DriverWithContext
	logger logrus.FieldLogger
}

func NewGraphRecorder(driver neo4j.DriverWithContext, logger logrus.FieldLogger) *GraphRecorder {
	return &GraphRecorder{driver: driver, logger: logging.OrDefault(logger)}
}

// Record replaces the graph of the document identified by record.SHA256.
func (g *GraphRecorder) Record(ctx context.Context, record domain.IngestionRecord) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if record.SHA256 == "" {
		return fmt.Errorf("ingestion record has no content hash")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {sha256: $sha})
			SET d.filename = $filename,
			    d.strategy = $strategy,
			    d.total_chunks = $total_chunks,
			    d.total_characters = $total_characters,
			    d.updated_at = datetime()
		`, map[string]any{
			"sha":              record.SHA256,
			"filename":         record.Summary.Filename,
			"strategy":         record.Summary.Strategy,
			"total_chunks":     record.Summary.TotalChunks,
			"total_characters": record.Summary.TotalCharacters,
		}); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {sha256: $sha})-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE c
		`, map[string]any{"sha": record.SHA256}); err != nil {
			return nil, fmt.Errorf("clear existing chunk nodes: %w", err)
		}

		for _, chunk := range record.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {sha256: $sha})
				CREATE (c:Chunk {key: $chunk_key, index: $chunk_index, label: $label, text: $text})
				MERGE (p:Page {document: $sha, number: $page})
				MERGE (d)-[:HAS_PAGE]->(p)
				CREATE (d)-[:HAS_CHUNK {order: $chunk_index}]->(c)
				CREATE (c)-[:ON_PAGE]->(p)
			`, map[string]any{
				"sha":         record.SHA256,
				"chunk_key":   chunk.ID,
				"chunk_index": chunk.Metadata.ChunkIndex,
				"label":       chunk.Metadata.ReferenceLabel,
				"text":        chunk.Content,
				"page":        chunk.Metadata.PageNumber,
			}); err != nil {
				return nil, fmt.Errorf("create chunk node %d: %w", chunk.Metadata.ChunkIndex, err)
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {sha256: $sha})-[r:HAS_PAGE]->(p:Page)
			WHERE NOT (p)<-[:ON_PAGE]-(:Chunk)
			DETACH DELETE p
		`, map[string]any{"sha": record.SHA256}); err != nil {
			return nil, fmt.Errorf("remove orphan pages: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"filename": record.Summary.Filename,
		"chunks":   len(record.Chunks),
	}).Info("synced document graph")
	return nil
}

// Purge deletes every node written by Record.
func (g *GraphRecorder) Purge(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (c:Chunk) DETACH DELETE c",
		"MATCH (p:Page) DETACH DELETE p",
		"MATCH (d:Document) DETACH DELETE d",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}
