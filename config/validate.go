package config

import (
	"fmt"
	"strings"
)

// MissingKeysError lists every required setting that was absent or invalid.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

// Validate checks that every key required by the selected backends and
// providers is present. It reports all of them at once.
func (c Config) Validate() error {
	return c.validate(false)
}

// ValidateWithLLM is Validate plus the answer-synthesis provider keys, all
// listed in one error.
func (c Config) ValidateWithLLM() error {
	return c.validate(true)
}

func (c Config) validate(withLLM bool) error {
	var missing []string
	require := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	switch c.Store.Backend {
	case BackendQdrant:
		require(c.Store.URL != "", "QDRANT_URL")
		require(c.Store.APIKey != "", "QDRANT_API_KEY")
	case BackendPostgres:
		require(c.Store.PostgresDSN != "", "POSTGRES_DSN")
	case BackendSQLite:
		require(c.Store.SQLitePath != "", "SQLITE_PATH")
	default:
		return fmt.Errorf("unknown vector store backend: %s", c.Store.Backend)
	}
	require(strings.TrimSpace(c.Store.Collection) != "", "COLLECTION_NAME")

	missing = append(missing, c.providerKeys(c.Embeddings.Provider)...)
	require(c.Embeddings.Dimension > 0, "VECTOR_SIZE")
	require(c.Chunking.TargetSize > 0, "CHUNK_SIZE")
	require(c.Chunking.OverlapFraction >= 0 && c.Chunking.OverlapFraction < 1, "CHUNK_OVERLAP")
	if withLLM {
		missing = append(missing, c.providerKeys(c.LLM.Provider)...)
	}

	if len(missing) > 0 {
		return &MissingKeysError{Keys: dedupe(missing)}
	}
	return nil
}

func (c Config) providerKeys(provider string) []string {
	switch provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return []string{"GEMINI_API_KEY"}
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return []string{"OPENAI_API_KEY"}
		}
	}
	return nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
