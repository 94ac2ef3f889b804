// Package vectorstore persists embedded chunks and runs cosine similarity
// searches over them. Qdrant, Postgres (pgvector) and SQLite backends
// implement the same Store contract.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Distance is the only metric the stores are created with.
const Distance = "Cosine"

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

// Payload is the metadata stored next to every vector.
type Payload struct {
	Text       string   `json:"text"`
	Title      string   `json:"title"`
	Filename   string   `json:"filename"`
	ChunkIndex int      `json:"chunk_index"`
	Topics     []string `json:"topics,omitempty"`
	Source     string   `json:"source,omitempty"`
	URL        string   `json:"url,omitempty"`
	Preview    string   `json:"preview,omitempty"`
	Document   string   `json:"document,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

// Point is one stored vector. IDs are positive and unique per collection.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// Filter keeps points matching any of the listed filenames or topics.
type Filter struct {
	Filenames []string
	Topics    []string
}

func (f *Filter) Empty() bool {
	return f == nil || (len(f.Filenames) == 0 && len(f.Topics) == 0)
}

func (f *Filter) matches(p Payload) bool {
	if f.Empty() {
		return true
	}
	for _, name := range f.Filenames {
		if p.Filename == name {
			return true
		}
	}
	for _, want := range f.Topics {
		for _, topic := range p.Topics {
			if topic == want {
				return true
			}
		}
	}
	return false
}

type SearchRequest struct {
	Vector     []float32
	Limit      int
	ScoreFloor float64
	Filter     *Filter
}

// Hit is a stored payload with its cosine similarity to the query.
type Hit struct {
	ID      uint64  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

type Store interface {
	// EnsureCollection creates the collection; an existing one is success.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	DeleteCollection(ctx context.Context, name string) error
	UpsertBatch(ctx context.Context, name string, points []Point) error
	Search(ctx context.Context, name string, req SearchRequest) ([]Hit, error)
	Close() error
}

// CollectionInfo summarizes a collection.
type CollectionInfo struct {
	Name       string
	Points     int64
	VectorSize int
	Status     string
}

// Inspector is implemented by stores that can describe a collection.
type Inspector interface {
	CollectionInfo(ctx context.Context, name string) (CollectionInfo, error)
}

func validateSearch(req SearchRequest) error {
	if len(req.Vector) == 0 {
		return fmt.Errorf("search vector is empty")
	}
	if req.Limit <= 0 {
		return fmt.Errorf("search limit must be positive")
	}
	return nil
}
