// Package api serves the retrieval pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fabfab/go-kb/search"
)

// Searcher is the retrieval pipeline the handlers call into.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
	Ask(ctx context.Context, req search.Request) (search.Response, search.Answer, error)
}

var _ Searcher = (*search.Service)(nil)

// Server exposes HTTP handlers for search and answer synthesis.
type Server struct {
	searcher Searcher
	logger   *log.Logger
	handler  http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type searchRequest struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
	NoMetadata bool   `json:"noMetadata"`
	NoExpand   bool   `json:"noExpand"`
	Simple     bool   `json:"simple"`
}

type searchResponse struct {
	Query    string         `json:"query"`
	Variants []string       `json:"variants"`
	Results  []searchResult `json:"results"`
}

type searchResult struct {
	Title      string   `json:"title"`
	Filename   string   `json:"filename"`
	ChunkIndex int      `json:"chunkIndex"`
	Score      float64  `json:"score"`
	Topics     []string `json:"topics,omitempty"`
	URL        string   `json:"url,omitempty"`
	Text       string   `json:"text"`
	Variant    string   `json:"variant,omitempty"`
}

type askResponse struct {
	Answer   string         `json:"answer"`
	Sources  []string       `json:"sources"`
	Fallback bool           `json:"fallback"`
	Results  []searchResult `json:"results"`
}

// New constructs a Server answering with searcher.
func New(searcher Searcher, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{searcher: searcher, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/ask", s.handleAsk)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readSearchRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("search failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, searchResponse{
		Query:    resp.Query,
		Variants: resp.Variants,
		Results:  transformResults(resp.Results),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readSearchRequest(w, r)
	if !ok {
		return
	}

	resp, answer, err := s.searcher.Ask(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), fmt.Errorf("ask failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, askResponse{
		Answer:   answer.Text,
		Sources:  answer.Sources,
		Fallback: answer.Fallback,
		Results:  transformResults(resp.Results),
	})
}

func (s *Server) readSearchRequest(w http.ResponseWriter, r *http.Request) (search.Request, bool) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return search.Request{}, false
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return search.Request{}, false
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return search.Request{}, false
	}
	if req.Limit < 0 || req.Limit > search.MaxLimit {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 0 and %d", search.MaxLimit))
		return search.Request{}, false
	}

	return search.Request{
		Query:      req.Query,
		Limit:      req.Limit,
		NoMetadata: req.NoMetadata,
		NoExpand:   req.NoExpand,
		Simple:     req.Simple,
	}, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrSynthesisUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, search.ErrNoQueryEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func transformResults(results []search.Result) []searchResult {
	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{
			Title:      res.Payload.Title,
			Filename:   res.Payload.Filename,
			ChunkIndex: res.Payload.ChunkIndex,
			Score:      res.Score,
			Topics:     append([]string(nil), res.Payload.Topics...),
			URL:        res.Payload.URL,
			Text:       res.Payload.Text,
			Variant:    res.Variant,
		}
	}
	return out
}
