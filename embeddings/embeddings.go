// Package embeddings turns text into fixed-length vectors through a remote
// provider.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/fabfab/go-kb/config"
)

// MaxInputChars is the longest text sent to a provider; longer input is
// truncated.
const MaxInputChars = 25000

// ErrNoEmbedding means the provider answered without a usable vector.
var ErrNoEmbedding = errors.New("provider returned no embedding")

// Embedder embeds one text per call. Implementations never return a zero
// vector in place of a failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	GeminiAPIKey  string
	GeminiBaseURL string
	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderGemini:
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but GEMINI_API_KEY not set")
		}
		return NewGeminiEmbedder(opts), nil
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

// Truncate cuts text to MaxInputChars characters and reports whether it did.
func Truncate(text string) (string, bool) {
	if utf8.RuneCountInString(text) <= MaxInputChars {
		return text, false
	}
	return string([]rune(text)[:MaxInputChars]), true
}

func checkVector(provider string, vec []float32, dimension int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%s: %w", provider, ErrNoEmbedding)
	}
	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("%s embedding dimension mismatch: expected %d, got %d", provider, dimension, len(vec))
	}
	return nil
}
