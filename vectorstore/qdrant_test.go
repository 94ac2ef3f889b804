package vectorstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   []byte
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(r recordedRequest) (int, string)
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		APIKey: r.Header.Get("api-key"),
		Body:   body,
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	status, resp := f.handler(rec)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp))
}

func newFakeQdrant(t *testing.T, handler func(r recordedRequest) (int, string)) (*fakeQdrant, *QdrantStore) {
	t.Helper()
	fake := &fakeQdrant{handler: handler}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, NewQdrantStore(srv.URL+"/", "secret")
}

func TestQdrantEnsureCollectionCreatesWhenMissing(t *testing.T) {
	fake, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodGet {
			return http.StatusNotFound, `{"status":{"error":"Not found"}}`
		}
		return http.StatusOK, `{"result":true,"status":"ok"}`
	})

	require.NoError(t, store.EnsureCollection(context.Background(), "nutrition", 768))
	require.Len(t, fake.requests, 2)

	create := fake.requests[1]
	assert.Equal(t, http.MethodPut, create.Method)
	assert.Equal(t, "/collections/nutrition", create.Path)
	assert.Equal(t, "secret", create.APIKey)
	assert.Equal(t, int64(768), gjson.GetBytes(create.Body, "vectors.size").Int())
	assert.Equal(t, "Cosine", gjson.GetBytes(create.Body, "vectors.distance").String())
	assert.Equal(t, int64(0), gjson.GetBytes(create.Body, "optimizers_config.indexing_threshold").Int())
}

func TestQdrantEnsureCollectionExisting(t *testing.T) {
	fake, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusOK, `{"result":{"status":"green"}}`
	})

	require.NoError(t, store.EnsureCollection(context.Background(), "nutrition", 768))
	assert.Len(t, fake.requests, 1)
}

func TestQdrantEnsureCollectionAlreadyExistsRace(t *testing.T) {
	_, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodGet {
			return http.StatusNotFound, `{}`
		}
		return http.StatusBadRequest, `{"status":{"error":"Wrong input: Collection nutrition already exists!"}}`
	})

	assert.NoError(t, store.EnsureCollection(context.Background(), "nutrition", 768))
}

func TestQdrantEnsureCollectionFailure(t *testing.T) {
	_, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusUnauthorized, `{"status":{"error":"bad api key"}}`
	})

	err := store.EnsureCollection(context.Background(), "nutrition", 768)
	assert.ErrorContains(t, err, "bad api key")
}

func TestQdrantDeleteCollection(t *testing.T) {
	_, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		assert.Equal(t, http.MethodDelete, r.Method)
		return http.StatusNotFound, `{}`
	})

	assert.ErrorIs(t, store.DeleteCollection(context.Background(), "gone"), ErrCollectionNotFound)
}

func TestQdrantUpsertBatch(t *testing.T) {
	fake, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusOK, `{"result":{"status":"completed"}}`
	})

	points := []Point{
		{ID: 1, Vector: []float32{1, 0}, Payload: Payload{Text: "a", Filename: "a.txt", ChunkIndex: 0}},
		{ID: 2, Vector: []float32{0, 1}, Payload: Payload{Text: "b", Filename: "a.txt", ChunkIndex: 1, Topics: []string{"keto"}}},
	}
	require.NoError(t, store.UpsertBatch(context.Background(), "nutrition", points))

	req := fake.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/collections/nutrition/points", req.Path)
	assert.Equal(t, "wait=true", req.Query)
	assert.Equal(t, int64(2), gjson.GetBytes(req.Body, "points.1.id").Int())
	assert.Equal(t, "keto", gjson.GetBytes(req.Body, "points.1.payload.topics.0").String())
	assert.Equal(t, int64(1), gjson.GetBytes(req.Body, "points.1.payload.chunk_index").Int())
}

func TestQdrantUpsertBatchFailure(t *testing.T) {
	_, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusInternalServerError, `oops`
	})

	err := store.UpsertBatch(context.Background(), "c", []Point{{ID: 1, Vector: []float32{1}}})
	assert.ErrorContains(t, err, "status 500")
}

func TestQdrantSearchRequestShape(t *testing.T) {
	fake, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusOK, `{"result":[]}`
	})

	_, err := store.Search(context.Background(), "nutrition", SearchRequest{
		Vector:     []float32{0.1, 0.2},
		Limit:      15,
		ScoreFloor: 0.1,
		Filter:     &Filter{Filenames: []string{"keto.txt", "dash.txt"}, Topics: []string{"weight loss"}},
	})
	require.NoError(t, err)

	body := fake.requests[0].Body
	assert.Equal(t, "/collections/nutrition/points/search", fake.requests[0].Path)
	assert.Equal(t, int64(15), gjson.GetBytes(body, "limit").Int())
	assert.True(t, gjson.GetBytes(body, "with_payload").Bool())
	assert.False(t, gjson.GetBytes(body, "with_vectors").Bool())
	assert.InDelta(t, 0.1, gjson.GetBytes(body, "score_threshold").Float(), 1e-9)

	should := gjson.GetBytes(body, "filter.should").Array()
	require.Len(t, should, 3)
	assert.Equal(t, "filename", should[0].Get("key").String())
	assert.Equal(t, "dash.txt", should[1].Get("match.value").String())
	assert.Equal(t, "topics", should[2].Get("key").String())
}

func TestQdrantSearchWithoutFloorOrFilter(t *testing.T) {
	fake, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusOK, `{"result":[]}`
	})

	_, err := store.Search(context.Background(), "c", SearchRequest{Vector: []float32{1}, Limit: 5})
	require.NoError(t, err)

	body := fake.requests[0].Body
	assert.False(t, gjson.GetBytes(body, "score_threshold").Exists())
	assert.False(t, gjson.GetBytes(body, "filter").Exists())
}

func TestQdrantSearchValidation(t *testing.T) {
	store := NewQdrantStore("http://unused", "")
	_, err := store.Search(context.Background(), "c", SearchRequest{Limit: 5})
	assert.Error(t, err)
	_, err = store.Search(context.Background(), "c", SearchRequest{Vector: []float32{1}})
	assert.Error(t, err)
}

func TestNormalizeHitsShapes(t *testing.T) {
	payload := `{"text":"olive oil","title":"Mediterranean Diet","filename":"med.txt","chunk_index":2,"topics":["heart health"]}`
	shapes := map[string]string{
		"result":        `{"result":[{"id":7,"score":0.91,"payload":` + payload + `}],"status":"ok"}`,
		"hits":          `{"hits":[{"id":7,"score":0.91,"payload":` + payload + `}]}`,
		"nested points": `{"result":{"points":[{"id":7,"score":0.91,"payload":` + payload + `}]}}`,
	}

	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			hits, err := normalizeHits([]byte(body))
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, uint64(7), hits[0].ID)
			assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
			assert.Equal(t, "med.txt", hits[0].Payload.Filename)
			assert.Equal(t, 2, hits[0].Payload.ChunkIndex)
			assert.Equal(t, []string{"heart health"}, hits[0].Payload.Topics)
		})
	}
}

func TestNormalizeHitsRejectsUnknownShape(t *testing.T) {
	_, err := normalizeHits([]byte(`{"status":"ok"}`))
	assert.Error(t, err)

	_, err = normalizeHits([]byte(`not json`))
	assert.Error(t, err)
}

func TestQdrantCollectionInfo(t *testing.T) {
	_, store := newFakeQdrant(t, func(r recordedRequest) (int, string) {
		return http.StatusOK, `{"result":{"status":"green","vectors_count":42,"config":{"params":{"vectors":{"size":768,"distance":"Cosine"}}}}}`
	})

	info, err := store.CollectionInfo(context.Background(), "nutrition")
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Points)
	assert.Equal(t, 768, info.VectorSize)
	assert.Equal(t, "green", info.Status)
}

func TestFilterMatches(t *testing.T) {
	p := Payload{Filename: "keto.txt", Topics: []string{"weight loss"}}

	var nilFilter *Filter
	assert.True(t, nilFilter.matches(p))
	assert.True(t, (&Filter{Filenames: []string{"keto.txt"}}).matches(p))
	assert.True(t, (&Filter{Topics: []string{"weight loss"}}).matches(p))
	assert.False(t, (&Filter{Filenames: []string{"dash.txt"}, Topics: []string{"epilepsy"}}).matches(p))
}

func TestPayloadJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Payload{Text: "t", Filename: "f", ChunkIndex: 3, RunID: "r"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), gjson.GetBytes(data, "chunk_index").Int())
	assert.Equal(t, "r", gjson.GetBytes(data, "run_id").String())
	assert.False(t, gjson.GetBytes(data, "topics").Exists())
}
