// Package metadata loads the document catalog that supplies titles and
// topics for ingested files and scores catalog entries against queries.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Article describes one document in the catalog.
type Article struct {
	Filename string   `json:"filename"`
	Title    string   `json:"title"`
	Topics   []string `json:"topics"`
	URL      string   `json:"url,omitempty"`
}

// Catalog indexes articles by base filename. The zero value is an empty
// catalog.
type Catalog struct {
	articles []Article
	byName   map[string]int
}

type catalogFile struct {
	Articles []Article `json:"articles"`
}

// Load reads a catalog of the form {"articles":[...]}.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata catalog: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode metadata catalog %s: %w", path, err)
	}
	return New(file.Articles), nil
}

// New builds a catalog from articles. Later duplicates of a filename are
// ignored.
func New(articles []Article) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(articles))}
	for _, article := range articles {
		key := filepath.Base(strings.TrimSpace(article.Filename))
		if key == "" || key == "." {
			continue
		}
		if _, ok := c.byName[key]; ok {
			continue
		}
		article.Filename = key
		c.byName[key] = len(c.articles)
		c.articles = append(c.articles, article)
	}
	return c
}

// Lookup returns the article for the base name of filename.
func (c *Catalog) Lookup(filename string) (Article, bool) {
	if c == nil {
		return Article{}, false
	}
	idx, ok := c.byName[filepath.Base(filename)]
	if !ok {
		return Article{}, false
	}
	return c.articles[idx], true
}

// Articles returns the catalog entries in file order.
func (c *Catalog) Articles() []Article {
	if c == nil {
		return nil
	}
	out := make([]Article, len(c.articles))
	copy(out, c.articles)
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.articles)
}

// Match is a catalog article scored against a query.
type Match struct {
	Article Article
	Score   int
}

// Relevant scores every article against query: a title contained in the
// query earns 5, otherwise a query word found in the title earns 2; each
// topic contained in the query earns 3, otherwise a query word found in the
// topic earns 1. Articles scoring zero are dropped and the rest are returned
// best first, ties in catalog order.
func (c *Catalog) Relevant(query string) []Match {
	if c == nil {
		return nil
	}
	lower := strings.ToLower(query)
	words := queryWords(lower)

	var matches []Match
	for _, article := range c.articles {
		score := 0

		title := strings.ToLower(strings.TrimSpace(article.Title))
		switch {
		case title == "":
		case strings.Contains(lower, title):
			score += 5
		case containsAnyWord(title, words):
			score += 2
		}

		for _, topic := range article.Topics {
			topic = strings.ToLower(strings.TrimSpace(topic))
			switch {
			case topic == "":
			case strings.Contains(lower, topic):
				score += 3
			case containsAnyWord(topic, words):
				score += 1
			}
		}

		if score > 0 {
			matches = append(matches, Match{Article: article, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// queryWords drops one and two letter words, which would otherwise match
// inside almost any title.
func queryWords(lower string) []string {
	fields := strings.Fields(lower)
	words := fields[:0]
	for _, field := range fields {
		if len([]rune(field)) >= 3 {
			words = append(words, field)
		}
	}
	return words
}

func containsAnyWord(s string, words []string) bool {
	for _, word := range words {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}
