package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/embeddings"
	"github.com/fabfab/go-kb/vectorstore"
)

const (
	DefaultLimit = 5
	// MaxLimit caps the results one search returns.
	MaxLimit = 100
	// maxCandidates caps the hits requested from the store per variant.
	maxCandidates          = 1000
	defaultCandidateFactor = 3
)

// ErrNoQueryEmbedding means not a single query variant could be embedded.
var ErrNoQueryEmbedding = errors.New("no query variant could be embedded")

type Options struct {
	Collection string
	// ScoreFloor drops hits below this similarity. Simple searches use 0.
	ScoreFloor float64
	// CandidateFactor multiplies the limit for each per-variant search.
	CandidateFactor int
	// HintedDocuments is how many hinted documents the search filters on.
	HintedDocuments int
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Collection:      cfg.Store.Collection,
		ScoreFloor:      cfg.Search.ScoreFloor,
		CandidateFactor: cfg.Search.CandidateFactor,
		HintedDocuments: DefaultHintedDocuments,
	}
}

type Request struct {
	Query string
	Limit int
	// NoMetadata skips the hint sources.
	NoMetadata bool
	// NoExpand searches with the query alone.
	NoExpand bool
	// Simple searches the bare query: no expansion, no hints, no score
	// floor and exactly Limit candidates.
	Simple bool
}

type Response struct {
	Query    string   `json:"query"`
	Variants []string `json:"variants"`
	Hints    Hints    `json:"-"`
	Results  []Result `json:"results"`
}

type Service struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	expander *Expander
	ranker   *Ranker
	sources  []HintSource
	synth    *Synthesizer
	logger   *log.Logger
	opts     Options
}

type Option func(*Service)

func WithExpander(e *Expander) Option {
	return func(s *Service) {
		if e != nil {
			s.expander = e
		}
	}
}

func WithRanker(r *Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithHintSources sets the hint sources; their hints are merged in order.
func WithHintSources(sources ...HintSource) Option {
	return func(s *Service) {
		s.sources = append(s.sources, sources...)
	}
}

func WithSynthesizer(synth *Synthesizer) Option {
	return func(s *Service) {
		s.synth = synth
	}
}

func NewService(store vectorstore.Store, embedder embeddings.Embedder, logger *log.Logger, opts Options, options ...Option) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = defaultCandidateFactor
	}
	if opts.HintedDocuments <= 0 {
		opts.HintedDocuments = DefaultHintedDocuments
	}

	s := &Service{
		store:    store,
		embedder: embedder,
		expander: NewExpander(),
		ranker:   NewRanker(nil),
		logger:   logger,
		opts:     opts,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Search embeds every query variant, searches the collection with each,
// and returns the merged hits ranked against the original query. A variant
// that fails to embed or search is logged and skipped.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, fmt.Errorf("query cannot be empty")
	}
	if s.embedder == nil {
		return Response{}, fmt.Errorf("embedder is not configured")
	}
	if s.store == nil {
		return Response{}, fmt.Errorf("vector store is not configured")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	resp := Response{Query: query, Variants: []string{query}}
	candidates := limit
	floor := 0.0

	if !req.Simple {
		if !req.NoExpand {
			resp.Variants = s.expander.Expand(query)
		}
		if !req.NoMetadata {
			resp.Hints = s.gatherHints(ctx, query)
		}
		candidates = maxCandidates
		if s.opts.CandidateFactor <= maxCandidates/limit {
			candidates = limit * s.opts.CandidateFactor
		}
		floor = s.opts.ScoreFloor
	}

	filter := resp.Hints.Filter(s.opts.HintedDocuments)

	var (
		merged   []Result
		embedded int
	)
	for _, variant := range resp.Variants {
		text, _ := embeddings.Truncate(variant)
		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			s.logger.Printf("embed query variant %q: %v", variant, err)
			continue
		}
		embedded++

		hits, err := s.store.Search(ctx, s.opts.Collection, vectorstore.SearchRequest{
			Vector:     vector,
			Limit:      candidates,
			ScoreFloor: floor,
			Filter:     filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			s.logger.Printf("search with variant %q: %v", variant, err)
			continue
		}
		for _, hit := range hits {
			merged = append(merged, Result{Hit: hit, Variant: variant})
		}
	}

	if embedded == 0 {
		return Response{}, ErrNoQueryEmbedding
	}

	ranked := s.ranker.Rank(merged, query, resp.Hints)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	resp.Results = ranked
	return resp, nil
}

// Ask searches and then synthesizes an answer from the results.
func (s *Service) Ask(ctx context.Context, req Request) (Response, Answer, error) {
	resp, err := s.Search(ctx, req)
	if err != nil {
		return Response{}, Answer{}, err
	}
	if s.synth == nil && len(resp.Results) > 0 {
		return resp, Answer{}, ErrSynthesisUnavailable
	}
	answer, err := s.synth.Answer(ctx, resp.Query, resp.Results)
	if err != nil {
		return resp, Answer{}, err
	}
	return resp, answer, nil
}

func (s *Service) gatherHints(ctx context.Context, query string) Hints {
	var hints Hints
	for _, source := range s.sources {
		h, err := source.Hints(ctx, query)
		if err != nil {
			s.logger.Printf("relevance hints: %v", err)
			continue
		}
		hints = hints.merge(h)
	}
	if len(hints.Documents) > 0 {
		s.logger.Printf("hinted documents: %s", strings.Join(hintedNames(hints, s.opts.HintedDocuments), ", "))
	}
	return hints
}

func hintedNames(h Hints, max int) []string {
	names := make([]string, 0, max)
	for i, doc := range h.Documents {
		if i == max {
			break
		}
		names = append(names, doc.Filename)
	}
	return names
}
