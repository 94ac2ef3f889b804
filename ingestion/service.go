package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/embeddings"
	"github.com/fabfab/go-kb/knowledge"
	"github.com/fabfab/go-kb/metadata"
	"github.com/fabfab/go-kb/throttle"
	"github.com/fabfab/go-kb/vectorstore"
)

const defaultBatchSize = 50

// GraphSyncer mirrors ingested documents into the knowledge graph.
type GraphSyncer interface {
	SyncDocument(ctx context.Context, doc knowledge.Document) error
	Purge(ctx context.Context) error
}

var _ GraphSyncer = (*knowledge.Graph)(nil)

type Options struct {
	Collection  string
	VectorSize  int
	BatchSize   int
	SourceLabel string
	EmbedDelay  time.Duration
	UploadDelay time.Duration

	Chunker *Chunker
	// Catalog overlays titles and topics. Nil disables the lookup.
	Catalog *metadata.Catalog
}

// OptionsFromConfig maps the runtime configuration onto Options.
func OptionsFromConfig(cfg config.Config, catalog *metadata.Catalog) Options {
	return Options{
		Collection:  cfg.Store.Collection,
		VectorSize:  cfg.Embeddings.Dimension,
		BatchSize:   cfg.Ingest.BatchSize,
		SourceLabel: cfg.Ingest.SourceLabel,
		EmbedDelay:  cfg.Ingest.EmbedDelay.Duration,
		UploadDelay: cfg.Ingest.UploadDelay.Duration,
		Chunker: NewChunker(
			WithTargetSize(cfg.Chunking.TargetSize),
			WithOverlapFraction(cfg.Chunking.OverlapFraction),
		),
		Catalog: catalog,
	}
}

// Report summarizes one ingestion run.
type Report struct {
	RunID            string
	DocumentsRead    int
	DocumentsSkipped int
	Chunks           int
	Embedded         int
	EmbedFailures    int
	Uploaded         int
	FailedBatches    int
}

type Service struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	graph    GraphSyncer
	logger   *log.Logger
	opts     Options
}

// NewService wires the ingestion pipeline. graph may be nil.
func NewService(store vectorstore.Store, embedder embeddings.Embedder, graph GraphSyncer, logger *log.Logger, opts Options) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Chunker == nil {
		opts.Chunker = NewChunker()
	}

	return &Service{
		store:    store,
		embedder: embedder,
		graph:    graph,
		logger:   logger,
		opts:     opts,
	}
}

// Reset drops the collection and purges the collection's knowledge graph
// nodes. A collection that does not exist is not an error; a failed graph
// purge is logged.
func (s *Service) Reset(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("vector store not configured")
	}
	err := s.store.DeleteCollection(ctx, s.opts.Collection)
	if err != nil && !errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err == nil {
		s.logger.Printf("deleted collection %s", s.opts.Collection)
	}

	if s.graph != nil {
		if err := s.graph.Purge(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("purge knowledge graph: %v", err)
		} else {
			s.logger.Printf("purged knowledge graph for %s", s.opts.Collection)
		}
	}
	return nil
}

// IngestDirectory embeds and uploads every supported document under dir.
// Unreadable documents, failed embeddings and failed batches are logged and
// skipped; only setup failures and cancellation abort the run.
func (s *Service) IngestDirectory(ctx context.Context, dir string, reset bool) (Report, error) {
	if s.embedder == nil {
		return Report{}, fmt.Errorf("embedder not configured")
	}
	if s.store == nil {
		return Report{}, fmt.Errorf("vector store not configured")
	}

	paths, err := ListDocuments(dir)
	if err != nil {
		return Report{}, err
	}

	if reset {
		if err := s.Reset(ctx); err != nil {
			return Report{}, err
		}
	}
	if err := s.store.EnsureCollection(ctx, s.opts.Collection, s.opts.VectorSize); err != nil {
		return Report{}, fmt.Errorf("ensure collection: %w", err)
	}

	r := &run{
		svc:        s,
		report:     Report{RunID: uuid.NewString()},
		nextID:     1,
		embedWait:  throttle.New(s.opts.EmbedDelay),
		uploadWait: throttle.New(s.opts.UploadDelay),
	}
	s.logger.Printf("ingestion run %s: %d documents in %s", r.report.RunID, len(paths), dir)

	for _, path := range paths {
		doc, err := ReadDocument(path)
		if err != nil {
			s.logger.Printf("skip %s: %v", path, err)
			r.report.DocumentsSkipped++
			continue
		}
		s.applyCatalog(&doc)
		r.report.DocumentsRead++

		if err := r.ingest(ctx, doc); err != nil {
			return r.report, err
		}
	}

	if err := r.flush(ctx); err != nil {
		return r.report, err
	}

	s.logger.Printf("ingestion run %s finished: %d/%d chunks uploaded, %d embedding failures, %d failed batches",
		r.report.RunID, r.report.Uploaded, r.report.Chunks, r.report.EmbedFailures, r.report.FailedBatches)
	return r.report, nil
}

func (s *Service) applyCatalog(doc *Document) {
	if s.opts.Catalog == nil {
		return
	}
	article, ok := s.opts.Catalog.Lookup(doc.Filename)
	if !ok {
		s.logger.Printf("no metadata for %s, using title %q", doc.Filename, doc.Title)
	} else {
		if strings.TrimSpace(article.Title) != "" {
			doc.Title = article.Title
		}
		doc.Topics = article.Topics
		doc.URL = article.URL
	}
	if doc.URL == "" {
		doc.URL = urlScheme(s.opts.SourceLabel) + "://" + doc.Filename
	}
}

// urlScheme lower-cases the first word of label: "Nutrition Articles"
// becomes "nutrition".
func urlScheme(label string) string {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return "doc"
	}
	return strings.ToLower(fields[0])
}

// run holds the state of one IngestDirectory call: the report, the next
// point id and the pending batch.
type run struct {
	svc        *Service
	report     Report
	nextID     uint64
	batch      []vectorstore.Point
	embedWait  *throttle.Throttle
	uploadWait *throttle.Throttle
}

func (r *run) ingest(ctx context.Context, doc Document) error {
	s := r.svc
	chunks := s.opts.Chunker.Chunk(doc.Text, doc.Topics)
	if len(chunks) == 0 {
		s.logger.Printf("skip empty document %s", doc.Filename)
		return nil
	}
	r.report.Chunks += len(chunks)

	graphDoc := knowledge.Document{
		Filename: doc.Filename,
		Title:    doc.Title,
		URL:      doc.URL,
		RunID:    r.report.RunID,
		Topics:   doc.Topics,
	}

	for _, chunk := range chunks {
		if err := r.embedWait.Wait(ctx); err != nil {
			return fmt.Errorf("wait before embedding: %w", err)
		}

		text, truncated := embeddings.Truncate(chunk.Text)
		if truncated {
			s.logger.Printf("chunk %d of %s truncated to %d characters", chunk.Index, doc.Filename, embeddings.MaxInputChars)
		}

		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("embed chunk %d/%d of %s: %v", chunk.Index+1, len(chunks), doc.Filename, err)
			r.report.EmbedFailures++
			continue
		}
		r.report.Embedded++

		id := r.nextID
		r.nextID++
		r.batch = append(r.batch, vectorstore.Point{
			ID:     id,
			Vector: vector,
			Payload: vectorstore.Payload{
				Text:       chunk.Text,
				Title:      doc.Title,
				Filename:   doc.Filename,
				ChunkIndex: chunk.Index,
				Topics:     chunk.Topics,
				Source:     s.opts.SourceLabel,
				URL:        doc.URL,
				Preview:    chunk.Preview,
				Document:   doc.Filename,
				RunID:      r.report.RunID,
			},
		})
		graphDoc.Chunks = append(graphDoc.Chunks, knowledge.Chunk{PointID: id, Index: chunk.Index, Preview: chunk.Preview})

		if len(r.batch) >= s.opts.BatchSize {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}

	s.logger.Printf("processed %s: %d chunks", doc.Filename, len(chunks))

	if s.graph != nil {
		if err := s.graph.SyncDocument(ctx, graphDoc); err != nil {
			s.logger.Printf("sync knowledge graph for %s: %v", doc.Filename, err)
		}
	}
	return nil
}

// flush uploads the pending batch. A failed upload is logged and its points
// are dropped.
func (r *run) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	s := r.svc
	batch := r.batch
	r.batch = nil

	if err := r.uploadWait.Wait(ctx); err != nil {
		return fmt.Errorf("wait before upload: %w", err)
	}

	if err := s.store.UpsertBatch(ctx, s.opts.Collection, batch); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Printf("upload batch of %d points (ids %d-%d): %v", len(batch), batch[0].ID, batch[len(batch)-1].ID, err)
		r.report.FailedBatches++
		return nil
	}

	r.report.Uploaded += len(batch)
	s.logger.Printf("uploaded %d points (%d total)", len(batch), r.report.Uploaded)
	return nil
}
