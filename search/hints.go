package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/go-kb/knowledge"
	"github.com/fabfab/go-kb/metadata"
	"github.com/fabfab/go-kb/vectorstore"
)

// DefaultHintedDocuments is how many hinted documents a search filters on.
const DefaultHintedDocuments = 3

// DocumentHint marks a document as likely relevant to the query.
type DocumentHint struct {
	Filename string
	Title    string
	Score    float64
}

// Hints are relevance signals gathered outside the vector search.
type Hints struct {
	Documents []DocumentHint
	Topics    []string
}

func (h Hints) Empty() bool {
	return len(h.Documents) == 0 && len(h.Topics) == 0
}

// Filter restricts a search to the first maxDocs hinted documents or any
// hinted topic. It returns nil when there is nothing to restrict on.
func (h Hints) Filter(maxDocs int) *vectorstore.Filter {
	if h.Empty() {
		return nil
	}
	f := &vectorstore.Filter{Topics: append([]string(nil), h.Topics...)}
	for i, doc := range h.Documents {
		if i == maxDocs {
			break
		}
		f.Filenames = append(f.Filenames, doc.Filename)
	}
	return f
}

func (h Hints) merge(other Hints) Hints {
	known := make(map[string]bool, len(h.Documents))
	for _, doc := range h.Documents {
		known[doc.Filename] = true
	}
	for _, doc := range other.Documents {
		if !known[doc.Filename] {
			known[doc.Filename] = true
			h.Documents = append(h.Documents, doc)
		}
	}
	for _, topic := range other.Topics {
		if !containsString(h.Topics, topic) {
			h.Topics = append(h.Topics, topic)
		}
	}
	return h
}

// HintSource produces relevance hints for a query.
type HintSource interface {
	Hints(ctx context.Context, query string) (Hints, error)
}

// CatalogHints scores the metadata catalog against the query and hints every
// matching document, best first.
type CatalogHints struct {
	catalog *metadata.Catalog
}

func NewCatalogHints(catalog *metadata.Catalog) *CatalogHints {
	return &CatalogHints{catalog: catalog}
}

func (c *CatalogHints) Hints(_ context.Context, query string) (Hints, error) {
	var hints Hints
	for _, match := range c.catalog.Relevant(query) {
		hints.Documents = append(hints.Documents, DocumentHint{
			Filename: match.Article.Filename,
			Title:    match.Article.Title,
			Score:    float64(match.Score),
		})
	}
	return hints, nil
}

// TopicHints hints the topics ExtractTopics finds in the query.
type TopicHints struct{}

func (TopicHints) Hints(_ context.Context, query string) (Hints, error) {
	return Hints{Topics: ExtractTopics(query)}, nil
}

// TopicGraph looks up documents by topic.
type TopicGraph interface {
	DocumentsByTopics(ctx context.Context, topics []string) ([]knowledge.DocumentMatch, error)
}

var _ TopicGraph = (*knowledge.Graph)(nil)

// GraphHints hints documents the knowledge graph links to the query's
// topics. A document's hint score is the number of topics it shares.
type GraphHints struct {
	graph TopicGraph
}

func NewGraphHints(graph TopicGraph) *GraphHints {
	return &GraphHints{graph: graph}
}

func (g *GraphHints) Hints(ctx context.Context, query string) (Hints, error) {
	topics := ExtractTopics(query)
	if len(topics) == 0 {
		return Hints{}, nil
	}
	matches, err := g.graph.DocumentsByTopics(ctx, topics)
	if err != nil {
		return Hints{}, fmt.Errorf("query knowledge graph: %w", err)
	}

	var hints Hints
	for _, match := range matches {
		hints.Documents = append(hints.Documents, DocumentHint{
			Filename: match.Filename,
			Title:    match.Title,
			Score:    float64(len(match.Topics)),
		})
	}
	return hints, nil
}

var (
	_ HintSource = (*CatalogHints)(nil)
	_ HintSource = TopicHints{}
	_ HintSource = (*GraphHints)(nil)
)

type topicRule struct {
	topic    string
	keywords []string
}

var dietRules = []topicRule{
	{"mediterranean", []string{"mediterranean", "med diet"}},
	{"dash", []string{"dash", "dash diet", "dietary approaches to stop hypertension"}},
	{"keto", []string{"keto", "ketogenic", "low carb high fat"}},
	{"paleo", []string{"paleo", "paleolithic", "stone age diet"}},
	{"plant-based", []string{"plant-based", "plant based", "vegan", "vegetarian"}},
	{"intermittent fasting", []string{"intermittent fasting", "if", "time restricted eating", "trf"}},
}

var (
	healthKeywords = []string{"health", "benefit", "advantage", "effect", "heart", "diabetes",
		"blood pressure", "weight", "loss", "disease", "cholesterol"}
	nutritionKeywords = []string{"nutrient", "nutrition", "vitamin", "mineral", "protein",
		"carb", "fat", "calorie", "fiber"}
)

// ExtractTopics maps a query onto catalog topics: the first diet it
// mentions, "health benefits" for health questions and "nutrients" for
// nutrition questions. Keywords of three letters or fewer only match whole
// words.
func ExtractTopics(query string) []string {
	lower := strings.ToLower(query)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	})

	var topics []string
	for _, rule := range dietRules {
		if mentionsAny(lower, words, rule.keywords) {
			topics = append(topics, rule.topic)
			break
		}
	}
	if mentionsAny(lower, words, healthKeywords) {
		topics = append(topics, "health benefits")
	}
	if mentionsAny(lower, words, nutritionKeywords) {
		topics = append(topics, "nutrients")
	}
	return topics
}

func mentionsAny(lower string, words, keywords []string) bool {
	for _, keyword := range keywords {
		if len(keyword) <= 3 {
			if containsString(words, keyword) {
				return true
			}
			continue
		}
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
