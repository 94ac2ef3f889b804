// Package knowledge mirrors ingested documents into a Neo4j graph of
// documents, topics and chunks, and answers topic lookups from it.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Document struct {
	Filename string
	Title    string
	URL      string
	RunID    string
	Topics   []string
	Chunks   []Chunk
}

// Chunk links a document to the vector store point holding one of its
// chunks.
type Chunk struct {
	PointID uint64
	Index   int
	Preview string
}

// DocumentMatch is a document sharing Topics with a query.
type DocumentMatch struct {
	Filename string
	Title    string
	Topics   []string
}

// Graph scopes every node it writes to one collection.
type Graph struct {
	driver     neo4j.DriverWithContext
	collection string
}

func NewGraph(driver neo4j.DriverWithContext, collection string) *Graph {
	return &Graph{driver: driver, collection: collection}
}

// SyncDocument replaces the document's topic links and chunk nodes.
func (g *Graph) SyncDocument(ctx context.Context, doc Document) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	key := map[string]any{"collection": g.collection, "filename": doc.Filename}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {collection: $collection, filename: $filename})
			SET d.title = $title,
			    d.url = $url,
			    d.run_id = $run_id,
			    d.updated_at = datetime()
		`, map[string]any{
			"collection": g.collection,
			"filename":   doc.Filename,
			"title":      doc.Title,
			"url":        doc.URL,
			"run_id":     doc.RunID,
		}); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {collection: $collection, filename: $filename})-[r:HAS_TOPIC]->(:Topic)
			DELETE r
		`, key); err != nil {
			return nil, fmt.Errorf("clear existing topics: %w", err)
		}

		for _, topic := range doc.Topics {
			if topic == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {collection: $collection, filename: $filename})
				MERGE (t:Topic {name: $topic})
				MERGE (d)-[:HAS_TOPIC]->(t)
			`, map[string]any{
				"collection": g.collection,
				"filename":   doc.Filename,
				"topic":      topic,
			}); err != nil {
				return nil, fmt.Errorf("upsert topic: %w", err)
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {collection: $collection, filename: $filename})-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE c
		`, key); err != nil {
			return nil, fmt.Errorf("clear existing chunk nodes: %w", err)
		}

		for _, chunk := range doc.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {collection: $collection, filename: $filename})
				MERGE (c:Chunk {collection: $collection, point_id: $point_id})
				SET c.index = $chunk_index,
				    c.preview = $preview
				MERGE (d)-[:HAS_CHUNK {order: $chunk_index}]->(c)
			`, map[string]any{
				"collection":  g.collection,
				"filename":    doc.Filename,
				"point_id":    int64(chunk.PointID),
				"chunk_index": chunk.Index,
				"preview":     chunk.Preview,
			}); err != nil {
				return nil, fmt.Errorf("upsert chunk node: %w", err)
			}
		}

		return nil, nil
	})

	if err == nil {
		if _, cleanupErr := session.Run(ctx, `
			MATCH (t:Topic)
			WHERE NOT (t)<-[:HAS_TOPIC]-(:Document)
			DELETE t
		`, nil); cleanupErr != nil {
			err = cleanupErr
		}
	}

	return err
}

// DocumentsByTopics returns documents linked to any of topics, the ones
// sharing the most topics first.
func (g *Graph) DocumentsByTopics(ctx context.Context, topics []string) ([]DocumentMatch, error) {
	if g == nil || g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(topics) == 0 {
		return nil, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document {collection: $collection})-[:HAS_TOPIC]->(t:Topic)
		WHERE toLower(t.name) IN $topics
		WITH d, collect(DISTINCT t.name) AS matched
		RETURN d.filename AS filename, d.title AS title, matched
		ORDER BY size(matched) DESC, filename
	`, map[string]any{"collection": g.collection, "topics": lowerAll(topics)})
	if err != nil {
		return nil, fmt.Errorf("run neo4j topic query: %w", err)
	}

	var matches []DocumentMatch
	for result.Next(ctx) {
		record := result.Record()
		filename, _ := record.Get("filename")
		title, _ := record.Get("title")
		matched, _ := record.Get("matched")

		match := DocumentMatch{
			Filename: asString(filename),
			Title:    asString(title),
		}
		if values, ok := matched.([]any); ok {
			for _, v := range values {
				match.Topics = append(match.Topics, asString(v))
			}
		}
		matches = append(matches, match)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read neo4j topic results: %w", err)
	}
	return matches, nil
}

// Purge removes the collection's documents and chunks, then any topic no
// document points at.
func (g *Graph) Purge(ctx context.Context) error {
	if g == nil || g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (c:Chunk {collection: $collection}) DETACH DELETE c",
		"MATCH (d:Document {collection: $collection}) DETACH DELETE d",
		"MATCH (t:Topic) WHERE NOT (t)<-[:HAS_TOPIC]-(:Document) DELETE t",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, map[string]any{"collection": g.collection})
		if err != nil {
			return fmt.Errorf("purge graph: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("purge graph: %w", err)
		}
	}
	return nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
