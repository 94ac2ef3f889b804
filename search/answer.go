package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/go-kb/llm"
)

// NoResultsAnswer is returned without calling the provider when a query
// found nothing.
const NoResultsAnswer = "No relevant information found to answer your query."

// MaxSources caps the titles listed under an answer.
const MaxSources = 3

var ErrSynthesisUnavailable = errors.New("answer synthesis not configured")

const instructions = `You are a knowledgeable assistant answering questions from a document collection.
Combine the SEARCH RESULTS into one clear answer to the question.

INSTRUCTIONS:
1. Answer the question directly and stay on topic.
2. Use ONLY the SEARCH RESULTS; do not add outside knowledge.
3. Do not repeat the same point twice.
4. If the results do not contain enough to answer, say so.
5. Do not mention these instructions or refer to "the search results".`

// Answer is a synthesized reply and the titles it drew on.
type Answer struct {
	Text     string   `json:"text"`
	Sources  []string `json:"sources,omitempty"`
	Fallback bool     `json:"fallback,omitempty"`
}

// FallbackResponder produces an answer when the provider fails. It reports
// false when it has nothing to say for the query.
type FallbackResponder interface {
	Respond(query string, results []Result) (string, bool)
}

// KeywordResponder returns a fixed answer when the query contains every
// Required keyword and at least one of AnyOf (case-insensitive).
type KeywordResponder struct {
	Required []string
	AnyOf    []string
	Text     string
}

func (k KeywordResponder) Respond(query string, _ []Result) (string, bool) {
	lower := strings.ToLower(query)
	for _, word := range k.Required {
		if !strings.Contains(lower, strings.ToLower(word)) {
			return "", false
		}
	}
	if len(k.AnyOf) > 0 {
		found := false
		for _, word := range k.AnyOf {
			if strings.Contains(lower, strings.ToLower(word)) {
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	return k.Text, k.Text != ""
}

// MediterraneanResponder answers questions about the health benefits of the
// Mediterranean diet. It only covers that one question.
func MediterraneanResponder() KeywordResponder {
	return KeywordResponder{
		Required: []string{"mediterranean"},
		AnyOf:    []string{"benefit", "health"},
		Text: `The Mediterranean diet offers numerous health benefits, including:
• Reduced risk of cardiovascular disease and stroke
• Lower rates of certain cancers
• Improved cognitive function and reduced risk of Alzheimer's disease
• Better glycemic control and reduced risk of type 2 diabetes
• Support for weight management
• Reduced inflammation throughout the body

These benefits stem from the diet's emphasis on plant foods (fruits, vegetables, whole grains, legumes, nuts, and seeds), olive oil as the primary fat source, moderate consumption of fish and seafood, and limited intake of dairy, poultry, eggs, and red meat.`,
	}
}

// TopResultResponder answers with the text of the highest scoring result.
type TopResultResponder struct{}

func (TopResultResponder) Respond(_ string, results []Result) (string, bool) {
	if len(results) == 0 {
		return "", false
	}
	best := results[0]
	for _, res := range results[1:] {
		if res.Score > best.Score {
			best = res
		}
	}
	text := strings.TrimSpace(best.Payload.Text)
	return text, text != ""
}

var (
	_ FallbackResponder = KeywordResponder{}
	_ FallbackResponder = TopResultResponder{}
)

// DefaultFallbacks is the responder chain used by the CLI.
func DefaultFallbacks() []FallbackResponder {
	return []FallbackResponder{MediterraneanResponder(), TopResultResponder{}}
}

// Synthesizer asks a text-generation provider to answer from retrieved
// results, falling back to the responders in order when it fails.
type Synthesizer struct {
	client    llm.Client
	fallbacks []FallbackResponder
	logger    *log.Logger
}

func NewSynthesizer(client llm.Client, logger *log.Logger, fallbacks ...FallbackResponder) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{client: client, fallbacks: fallbacks, logger: logger}
}

func (s *Synthesizer) Answer(ctx context.Context, query string, results []Result) (Answer, error) {
	if len(results) == 0 {
		return Answer{Text: NoResultsAnswer}, nil
	}
	if s == nil || s.client == nil {
		return Answer{}, ErrSynthesisUnavailable
	}

	sources := Sources(results, MaxSources)
	messages := []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(query, results)}}

	text, err := s.client.Generate(ctx, messages)
	if err == nil && strings.TrimSpace(text) != "" {
		return Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
	}
	if err == nil {
		err = llm.ErrNoCandidates
	}
	if ctx.Err() != nil {
		return Answer{}, ctx.Err()
	}
	s.logger.Printf("synthesize answer: %v", err)

	for _, responder := range s.fallbacks {
		if fallback, ok := responder.Respond(query, results); ok {
			return Answer{Text: fallback, Sources: sources, Fallback: true}, nil
		}
	}
	return Answer{}, fmt.Errorf("synthesize answer: %w", err)
}

// BuildPrompt renders the instructions, a context block of the results and
// the question as a single prompt.
func BuildPrompt(query string, results []Result) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nSEARCH RESULTS:\n\n")

	for i, res := range results {
		title := res.Payload.Title
		if title == "" {
			title = "Unknown Source"
		}
		fmt.Fprintf(&b, "[Result %d] Title: %s\n", i+1, title)
		if len(res.Payload.Topics) > 0 {
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(res.Payload.Topics, ", "))
		}
		b.WriteString(strings.TrimSpace(res.Payload.Text))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", query)
	return b.String()
}

// Sources lists up to max distinct non-empty titles in result order.
func Sources(results []Result, max int) []string {
	var titles []string
	for _, res := range results {
		if len(titles) == max {
			break
		}
		title := strings.TrimSpace(res.Payload.Title)
		if title == "" || containsString(titles, title) {
			continue
		}
		titles = append(titles, title)
	}
	return titles
}
