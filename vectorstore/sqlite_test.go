package vectorstore

import (
	"bytes"
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/database"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := NewSQLiteStore(db, log.New(io.Discard, "", 0))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, "docs", 2))
	require.NoError(t, store.UpsertBatch(ctx, "docs", []Point{
		{ID: 1, Vector: []float32{1, 0}, Payload: Payload{Text: "east", Filename: "a.txt", ChunkIndex: 0, Topics: []string{"keto"}}},
		{ID: 2, Vector: []float32{0.7, 0.7}, Payload: Payload{Text: "north east", Filename: "a.txt", ChunkIndex: 1}},
		{ID: 3, Vector: []float32{0, 1}, Payload: Payload{Text: "north", Filename: "b.txt", ChunkIndex: 0}},
		{ID: 4, Vector: []float32{-1, 0}, Payload: Payload{Text: "west", Filename: "c.txt", ChunkIndex: 0}},
	}))
}

func TestSQLiteSearchOrdersByCosine(t *testing.T) {
	store := newSQLiteStore(t)
	seed(t, store)

	hits, err := store.Search(context.Background(), "docs", SearchRequest{Vector: []float32{1, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, []uint64{1, 2, 3, 4}, []uint64{hits[0].ID, hits[1].ID, hits[2].ID, hits[3].ID})
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "east", hits[0].Payload.Text)
	assert.Equal(t, []string{"keto"}, hits[0].Payload.Topics)
}

func TestSQLiteSearchFloorLimitAndFilter(t *testing.T) {
	store := newSQLiteStore(t)
	seed(t, store)
	ctx := context.Background()

	hits, err := store.Search(ctx, "docs", SearchRequest{Vector: []float32{1, 0}, Limit: 10, ScoreFloor: 0.1})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = store.Search(ctx, "docs", SearchRequest{Vector: []float32{1, 0}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(1), hits[0].ID)

	hits, err = store.Search(ctx, "docs", SearchRequest{
		Vector: []float32{1, 0},
		Limit:  10,
		Filter: &Filter{Filenames: []string{"b.txt"}, Topics: []string{"keto"}},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(1), hits[0].ID)
	assert.Equal(t, uint64(3), hits[1].ID)
}

func TestSQLiteUpsertReplacesByID(t *testing.T) {
	store := newSQLiteStore(t)
	seed(t, store)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, "docs", []Point{
		{ID: 1, Vector: []float32{0, -1}, Payload: Payload{Text: "south", Filename: "a.txt"}},
	}))

	info, err := store.CollectionInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Points)
	assert.Equal(t, 2, info.VectorSize)
}

func TestSQLiteRejectsWrongDimension(t *testing.T) {
	store := newSQLiteStore(t)
	seed(t, store)

	err := store.UpsertBatch(context.Background(), "docs", []Point{{ID: 9, Vector: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteDeleteCollection(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.DeleteCollection(ctx, "docs"), ErrCollectionNotFound)

	seed(t, store)
	require.NoError(t, store.DeleteCollection(ctx, "docs"))

	_, err := store.Search(ctx, "docs", SearchRequest{Vector: []float32{1, 0}, Limit: 1})
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, store.EnsureCollection(ctx, "docs", 3), "recreate with a new size after delete")
}

func TestOpenSelectsBackend(t *testing.T) {
	store, err := Open(context.Background(), config.StoreConfig{Backend: config.BackendQdrant, URL: "http://localhost:6333"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &QdrantStore{}, store)

	store, err = Open(context.Background(), config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), config.StoreConfig{Backend: "faiss"}, nil)
	assert.Error(t, err)
}

func TestSQLiteSearchSkipsZeroVector(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	var logs bytes.Buffer
	store := NewSQLiteStore(db, log.New(&logs, "", 0))
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, "docs", 2))
	require.NoError(t, store.UpsertBatch(ctx, "docs", []Point{
		{ID: 1, Vector: []float32{0, 0}, Payload: Payload{Filename: "empty.txt"}},
		{ID: 2, Vector: []float32{1, 0}, Payload: Payload{Filename: "a.txt"}},
	}))

	hits, err := store.Search(ctx, "docs", SearchRequest{Vector: []float32{1, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(2), hits[0].ID)
	assert.Contains(t, logs.String(), "skip point 1")
}
