package ingestion

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/go-kb/embeddings"
	"github.com/fabfab/go-kb/knowledge"
	"github.com/fabfab/go-kb/metadata"
	"github.com/fabfab/go-kb/vectorstore"
)

type stubEmbedder struct {
	calls  []string
	failOn string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls = append(s.calls, text)
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, embeddings.ErrNoEmbedding
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubStore struct {
	ensured     []int
	deleted     int
	deleteErr   error
	ensureErr   error
	failBatches map[int]bool
	batches     [][]vectorstore.Point
	calls       int
}

func (s *stubStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	s.ensured = append(s.ensured, vectorSize)
	return s.ensureErr
}

func (s *stubStore) DeleteCollection(ctx context.Context, name string) error {
	s.deleted++
	return s.deleteErr
}

func (s *stubStore) UpsertBatch(ctx context.Context, name string, points []vectorstore.Point) error {
	s.calls++
	if s.failBatches[s.calls] {
		return errors.New("status 500: boom")
	}
	s.batches = append(s.batches, append([]vectorstore.Point(nil), points...))
	return nil
}

func (s *stubStore) Search(ctx context.Context, name string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	return nil, nil
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) points() []vectorstore.Point {
	var out []vectorstore.Point
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

var _ vectorstore.Store = (*stubStore)(nil)

type stubGraph struct {
	docs     []knowledge.Document
	err      error
	purged   int
	purgeErr error
}

func (s *stubGraph) SyncDocument(ctx context.Context, doc knowledge.Document) error {
	s.docs = append(s.docs, doc)
	return s.err
}

func (s *stubGraph) Purge(ctx context.Context) error {
	s.purged++
	return s.purgeErr
}

var _ GraphSyncer = (*stubGraph)(nil)

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestIngestDirectoryMissingEmbedder(t *testing.T) {
	svc := NewService(&stubStore{}, nil, nil, quietLogger(), Options{})
	if _, err := svc.IngestDirectory(context.Background(), "./does-not-matter", false); err == nil {
		t.Fatal("expected error when embedder is nil")
	}
}

func TestIngestDirectoryUploadsPointsWithPayload(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"keto_diet.txt":     "Keto is low carb.\n\nIt may help epilepsy.",
		"mediterranean.txt": "Olive oil and fish.",
		"notes.png":         "ignored",
	})
	catalog := metadata.New([]metadata.Article{
		{Filename: "keto_diet.txt", Title: "The Keto Diet", Topics: []string{"weight loss", "epilepsy"}},
	})
	store := &stubStore{}
	graph := &stubGraph{}

	svc := NewService(store, &stubEmbedder{}, graph, quietLogger(), Options{
		Collection:  "docs",
		VectorSize:  3,
		SourceLabel: "Nutrition Articles",
		Catalog:     catalog,
	})

	report, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, store.ensured)
	assert.Equal(t, 0, store.deleted)
	assert.Equal(t, 2, report.DocumentsRead)
	assert.Equal(t, 2, report.Chunks)
	assert.Equal(t, 2, report.Uploaded)
	assert.NotEmpty(t, report.RunID)

	points := store.points()
	require.Len(t, points, 2)
	assert.Equal(t, uint64(1), points[0].ID)
	assert.Equal(t, uint64(2), points[1].ID)

	keto := points[0].Payload
	assert.Equal(t, "The Keto Diet", keto.Title)
	assert.Equal(t, "keto_diet.txt", keto.Filename)
	assert.Equal(t, "keto_diet.txt", keto.Document)
	assert.Equal(t, 0, keto.ChunkIndex)
	assert.Equal(t, []string{"weight loss", "epilepsy"}, keto.Topics)
	assert.Equal(t, "Nutrition Articles", keto.Source)
	assert.Equal(t, "nutrition://keto_diet.txt", keto.URL)
	assert.Equal(t, "Keto is low carb.", keto.Preview)
	assert.Equal(t, report.RunID, keto.RunID)

	med := points[1].Payload
	assert.Equal(t, "Mediterranean", med.Title, "missing catalog entry falls back to filename title")
	assert.Empty(t, med.Topics)

	require.Len(t, graph.docs, 2)
	assert.Equal(t, []knowledge.Chunk{{PointID: 1, Index: 0, Preview: "Keto is low carb."}}, graph.docs[0].Chunks)
	assert.Equal(t, report.RunID, graph.docs[0].RunID)
}

func TestIngestDirectorySkipsFailedEmbedding(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"doc.txt": "alpha one two\n\nFAIL three four\n\ngamma five six",
	})
	store := &stubStore{}
	embedder := &stubEmbedder{failOn: "FAIL"}

	svc := NewService(store, embedder, nil, quietLogger(), Options{
		Collection: "docs",
		VectorSize: 3,
		Chunker:    NewChunker(WithTargetSize(3), WithOverlapFraction(0)),
	})

	report, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Len(t, embedder.calls, 3)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 2, report.Embedded)
	assert.Equal(t, 1, report.EmbedFailures)

	points := store.points()
	require.Len(t, points, 2)
	assert.Equal(t, 0, points[0].Payload.ChunkIndex)
	assert.Equal(t, 2, points[1].Payload.ChunkIndex)
	assert.Equal(t, uint64(2), points[1].ID)
}

func TestIngestDirectoryBatchesAndSkipsFailedBatch(t *testing.T) {
	var paras []string
	for i := 0; i < 5; i++ {
		paras = append(paras, para("w", 2))
	}
	dir := writeDocs(t, map[string]string{"doc.txt": strings.Join(paras, "\n\n")})
	store := &stubStore{failBatches: map[int]bool{2: true}}

	svc := NewService(store, &stubEmbedder{}, nil, quietLogger(), Options{
		Collection: "docs",
		VectorSize: 3,
		BatchSize:  2,
		Chunker:    NewChunker(WithTargetSize(2), WithOverlapFraction(0)),
	})

	report, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)

	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 1, report.FailedBatches)
	assert.Equal(t, 3, report.Uploaded)
	require.Len(t, store.batches, 2)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 1)
	assert.Equal(t, uint64(5), store.batches[1][0].ID)
}

func TestIngestDirectoryResetIgnoresMissingCollection(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "text"})
	store := &stubStore{deleteErr: vectorstore.ErrCollectionNotFound}

	svc := NewService(store, &stubEmbedder{}, nil, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	_, err := svc.IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.deleted)
	assert.Len(t, store.ensured, 1)
}

func TestIngestDirectoryResetPurgesGraph(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "text"})
	store := &stubStore{}
	graph := &stubGraph{}

	svc := NewService(store, &stubEmbedder{}, graph, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	_, err := svc.IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.deleted)
	assert.Equal(t, 1, graph.purged)
	assert.Len(t, graph.docs, 1)

	graph = &stubGraph{purgeErr: errors.New("neo4j down")}
	svc = NewService(&stubStore{}, &stubEmbedder{}, graph, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	report, err := svc.IngestDirectory(context.Background(), dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, graph.purged)
	assert.Equal(t, 1, report.Uploaded)
}

func TestIngestDirectoryWithoutResetKeepsGraph(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "text"})
	graph := &stubGraph{}

	svc := NewService(&stubStore{}, &stubEmbedder{}, graph, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	_, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Zero(t, graph.purged)
}

func TestIngestDirectoryResetFailure(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "text"})
	store := &stubStore{deleteErr: errors.New("status 500")}

	svc := NewService(store, &stubEmbedder{}, nil, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	_, err := svc.IngestDirectory(context.Background(), dir, true)
	require.Error(t, err)
	assert.Empty(t, store.ensured)
}

func TestIngestDirectoryEnsureFailureIsFatal(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "text"})
	store := &stubStore{ensureErr: errors.New("unauthorized")}
	embedder := &stubEmbedder{}

	svc := NewService(store, embedder, nil, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	_, err := svc.IngestDirectory(context.Background(), dir, false)
	require.Error(t, err)
	assert.Empty(t, embedder.calls)
}

func TestIngestDirectoryGraphFailureIsLogged(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "text"})
	store := &stubStore{}

	svc := NewService(store, &stubEmbedder{}, &stubGraph{err: errors.New("neo4j down")}, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	report, err := svc.IngestDirectory(context.Background(), dir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
}

func TestIngestDirectoryCancelled(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": "one\n\ntwo"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(&stubStore{}, &stubEmbedder{}, nil, quietLogger(), Options{Collection: "docs", VectorSize: 3})
	_, err := svc.IngestDirectory(ctx, dir, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestURLScheme(t *testing.T) {
	assert.Equal(t, "nutrition", urlScheme("Nutrition Articles"))
	assert.Equal(t, "documents", urlScheme("Documents"))
	assert.Equal(t, "doc", urlScheme("  "))
}
