package llm

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
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-1.5-flash"
)

type geminiClient struct {
	baseURL  string
	apiKey   string
	model    string
	sampling Sampling
	client   *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiClient(opts Options) Client {
	baseURL := strings.TrimRight(opts.GeminiBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := strings.TrimPrefix(opts.Model, "models/")
	if model == "" {
		model = defaultGeminiModel
	}

	return &geminiClient{
		baseURL:  baseURL,
		apiKey:   opts.GeminiAPIKey,
		model:    model,
		sampling: opts.Sampling,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Generate sends every message as one user turn; the instructions, context
// and question travel together as a single prompt.
func (c *geminiClient) Generate(ctx context.Context, messages []Message) (string, error) {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if text := strings.TrimSpace(msg.Content); text != "" {
			parts = append(parts, text)
		}
	}

	payload := geminiGenerateRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: strings.Join(parts, "\n\n")}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.sampling.Temperature,
			TopP:            c.sampling.TopP,
			TopK:            c.sampling.TopK,
			MaxOutputTokens: c.sampling.MaxOutputTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini generate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini generate API returned status %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var parsed geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("gemini: %w", ErrNoCandidates)
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("gemini: %w", ErrNoCandidates)
	}
	return answer, nil
}
