package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"KB_CONFIG", "VECTOR_STORE", "QDRANT_URL", "QDRANT_API_KEY", "COLLECTION_NAME",
	"POSTGRES_DSN", "SQLITE_PATH", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "VECTOR_SIZE",
	"GEMINI_API_KEY", "OPENAI_API_KEY", "CHUNK_SIZE", "CHUNK_OVERLAP", "EMBED_DELAY",
	"UPLOAD_DELAY", "BATCH_SIZE", "LLM_PROVIDER", "NEO4J_URI", "BOOST_STRATEGY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendQdrant, cfg.Store.Backend)
	assert.Equal(t, "document_collection", cfg.Store.Collection)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, 1000, cfg.Chunking.TargetSize)
	assert.InDelta(t, 0.2, cfg.Chunking.OverlapFraction, 1e-9)
	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.EmbedDelay.Duration)
	assert.Equal(t, time.Second, cfg.Ingest.UploadDelay.Duration)
	assert.Equal(t, 3, cfg.Search.CandidateFactor)
	assert.False(t, cfg.Neo4j.Enabled())
}

func TestLoadFileThenEnvironment(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "kb.toml")
	content := `
gemini_api_key = "from-file"

[store]
url = "http://qdrant:6333"
api_key = "secret"
collection = "nutrition"

[chunking]
target_size = 400

[ingest]
embed_delay = "250ms"
upload_delay = "2"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("COLLECTION_NAME", "override")
	t.Setenv("CHUNK_OVERLAP", "0.3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://qdrant:6333", cfg.Store.URL)
	assert.Equal(t, "override", cfg.Store.Collection)
	assert.Equal(t, 400, cfg.Chunking.TargetSize)
	assert.InDelta(t, 0.3, cfg.Chunking.OverlapFraction, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Ingest.EmbedDelay.Duration)
	assert.Equal(t, 2*time.Second, cfg.Ingest.UploadDelay.Duration)
	assert.NoError(t, cfg.Validate())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "lots")

	_, err := Load("")
	assert.ErrorContains(t, err, "CHUNK_SIZE")
}

func TestValidateListsEveryMissingKey(t *testing.T) {
	cfg := Default()
	cfg.Store.Collection = ""
	cfg.Embeddings.Dimension = 0

	err := cfg.Validate()
	var missing *MissingKeysError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"QDRANT_URL", "QDRANT_API_KEY", "COLLECTION_NAME", "GEMINI_API_KEY", "VECTOR_SIZE"}, missing.Keys)
	assert.Contains(t, err.Error(), "QDRANT_URL, QDRANT_API_KEY")
}

func TestValidateBackendSpecificKeys(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = BackendSQLite
	cfg.Embeddings.Provider = ProviderOllama

	var missing *MissingKeysError
	require.ErrorAs(t, cfg.Validate(), &missing)
	assert.Equal(t, []string{"SQLITE_PATH"}, missing.Keys)

	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "kb.db")
	assert.NoError(t, cfg.Validate())

	cfg.Chunking.OverlapFraction = 1
	require.ErrorAs(t, cfg.Validate(), &missing)
	assert.Equal(t, []string{"CHUNK_OVERLAP"}, missing.Keys)
}

func TestValidateWithLLMMergesProviderKeys(t *testing.T) {
	cfg := Default()
	cfg.GeminiAPIKey = "g"
	cfg.LLM.Provider = ProviderOpenAI

	var missing *MissingKeysError
	require.ErrorAs(t, cfg.ValidateWithLLM(), &missing)
	assert.Equal(t, []string{"QDRANT_URL", "QDRANT_API_KEY", "OPENAI_API_KEY"}, missing.Keys)

	require.ErrorAs(t, cfg.Validate(), &missing)
	assert.Equal(t, []string{"QDRANT_URL", "QDRANT_API_KEY"}, missing.Keys)

	cfg.LLM.Provider = ProviderGemini
	require.ErrorAs(t, cfg.ValidateWithLLM(), &missing)
	assert.Equal(t, []string{"QDRANT_URL", "QDRANT_API_KEY"}, missing.Keys)

	cfg.Store.URL, cfg.Store.APIKey = "http://localhost:6333", "k"
	cfg.LLM.Provider = ProviderOllama
	assert.NoError(t, cfg.ValidateWithLLM())
}
