package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// QdrantStore talks to the Qdrant REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type QdrantOption func(*QdrantStore)

func WithHTTPClient(client *http.Client) QdrantOption {
	return func(s *QdrantStore) {
		if client != nil {
			s.client = client
		}
	}
}

func NewQdrantStore(baseURL, apiKey string, opts ...QdrantOption) *QdrantStore {
	s := &QdrantStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type qdrantVectors struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCreateCollection struct {
	Vectors          qdrantVectors  `json:"vectors"`
	OptimizersConfig map[string]int `json:"optimizers_config"`
}

type qdrantPoint struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type qdrantUpsert struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantSearch struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	WithVectors bool      `json:"with_vectors"`
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("vector size must be positive")
	}

	status, body, err := s.do(ctx, http.MethodGet, collectionPath(name), nil)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check collection %s: %s", name, describe(status, body))
	}

	status, body, err = s.do(ctx, http.MethodPut, collectionPath(name), qdrantCreateCollection{
		Vectors:          qdrantVectors{Size: vectorSize, Distance: Distance},
		OptimizersConfig: map[string]int{"indexing_threshold": 0},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	if status == http.StatusOK || alreadyExists(status, body) {
		return nil
	}
	return fmt.Errorf("create collection %s: %s", name, describe(status, body))
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	status, body, err := s.do(ctx, http.MethodDelete, collectionPath(name), nil)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("delete collection %s: %w", name, ErrCollectionNotFound)
	default:
		return fmt.Errorf("delete collection %s: %s", name, describe(status, body))
	}
}

func (s *QdrantStore) UpsertBatch(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	req := qdrantUpsert{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		req.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}

	status, body, err := s.do(ctx, http.MethodPut, collectionPath(name)+"/points?wait=true", req)
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert %d points: %s", len(points), describe(status, body))
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, name string, req SearchRequest) ([]Hit, error) {
	if err := validateSearch(req); err != nil {
		return nil, err
	}

	body, err := searchBody(req)
	if err != nil {
		return nil, err
	}

	status, resp, err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", json.RawMessage(body))
	if err != nil {
		return nil, fmt.Errorf("search collection %s: %w", name, err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("search collection %s: %w", name, ErrCollectionNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search collection %s: %s", name, describe(status, resp))
	}
	return normalizeHits(resp)
}

func (s *QdrantStore) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	status, body, err := s.do(ctx, http.MethodGet, collectionPath(name), nil)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, err)
	}
	if status == http.StatusNotFound {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %w", name, ErrCollectionNotFound)
	}
	if status != http.StatusOK {
		return CollectionInfo{}, fmt.Errorf("get collection %s: %s", name, describe(status, body))
	}

	result := gjson.GetBytes(body, "result")
	points := result.Get("points_count")
	if !points.Exists() {
		points = result.Get("vectors_count")
	}
	return CollectionInfo{
		Name:       name,
		Points:     points.Int(),
		VectorSize: int(result.Get("config.params.vectors.size").Int()),
		Status:     result.Get("status").String(),
	}, nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *QdrantStore) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func searchBody(req SearchRequest) ([]byte, error) {
	body, err := json.Marshal(qdrantSearch{
		Vector:      req.Vector,
		Limit:       req.Limit,
		WithPayload: true,
		WithVectors: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	if req.ScoreFloor > 0 {
		if body, err = sjson.SetBytes(body, "score_threshold", req.ScoreFloor); err != nil {
			return nil, fmt.Errorf("set score threshold: %w", err)
		}
	}

	if !req.Filter.Empty() {
		if body, err = sjson.SetBytes(body, "filter", qdrantFilter(req.Filter)); err != nil {
			return nil, fmt.Errorf("set search filter: %w", err)
		}
	}
	return body, nil
}

type qdrantMatch struct {
	Value string `json:"value"`
}

type qdrantCondition struct {
	Key   string      `json:"key"`
	Match qdrantMatch `json:"match"`
}

// qdrantFilter builds a match-any ("should") filter on payload fields.
func qdrantFilter(f *Filter) map[string][]qdrantCondition {
	should := make([]qdrantCondition, 0, len(f.Filenames)+len(f.Topics))
	for _, name := range f.Filenames {
		should = append(should, qdrantCondition{Key: "filename", Match: qdrantMatch{Value: name}})
	}
	for _, topic := range f.Topics {
		should = append(should, qdrantCondition{Key: "topics", Match: qdrantMatch{Value: topic}})
	}
	return map[string][]qdrantCondition{"should": should}
}

// normalizeHits maps a search response onto Hit. Qdrant answers under
// "result"; some gateways and older builds answer under "hits", sometimes
// wrapping the list as {"points": [...]}. Both shapes are accepted here and
// nowhere else.
func normalizeHits(body []byte) ([]Hit, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode search response: invalid json")
	}

	list := gjson.GetBytes(body, "result")
	if !list.Exists() {
		list = gjson.GetBytes(body, "hits")
	}
	if list.IsObject() && list.Get("points").IsArray() {
		list = list.Get("points")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("decode search response: no result list")
	}

	items := list.Array()
	hits := make([]Hit, 0, len(items))
	for _, item := range items {
		hit := Hit{
			ID:    item.Get("id").Uint(),
			Score: item.Get("score").Float(),
		}
		if raw := item.Get("payload"); raw.IsObject() {
			if err := json.Unmarshal([]byte(raw.Raw), &hit.Payload); err != nil {
				return nil, fmt.Errorf("decode hit payload: %w", err)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func alreadyExists(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(gjson.GetBytes(body, "status.error").String()), "already exists")
}

func describe(status int, body []byte) string {
	msg := gjson.GetBytes(body, "status.error").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256]
		}
	}
	return fmt.Sprintf("status %d: %s", status, msg)
}
