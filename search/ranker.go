package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/vectorstore"
)

const (
	textMatchWeight   = 0.1
	titleMatchBoost   = 0.05
	hintScoreWeight   = 0.05
	topicMatchBoost   = 0.15
	minQueryTermRunes = 4
)

// Result is a search hit together with the query variant that found it.
type Result struct {
	vectorstore.Hit
	Variant string `json:"variant,omitempty"`
}

func (r Result) key() string {
	return r.Payload.Filename + ":" + strconv.Itoa(r.Payload.ChunkIndex)
}

// BoostStrategy folds relevance hints into a hit's score.
type BoostStrategy interface {
	Name() string
	Boost(score float64, payload vectorstore.Payload, hints Hints) float64
}

// Multiplicative scales the score of a hit from a hinted document by
// 1 + hintScore*0.05, using the first hint naming the hit's file.
type Multiplicative struct{}

func (Multiplicative) Name() string { return config.StrategyMultiplicative }

func (Multiplicative) Boost(score float64, payload vectorstore.Payload, hints Hints) float64 {
	for _, doc := range hints.Documents {
		if doc.Filename == payload.Filename {
			return score * (1 + doc.Score*hintScoreWeight)
		}
	}
	return score
}

// Additive adds 0.15 for every hinted topic the hit is tagged with.
type Additive struct{}

func (Additive) Name() string { return config.StrategyAdditive }

func (Additive) Boost(score float64, payload vectorstore.Payload, hints Hints) float64 {
	for _, topic := range hints.Topics {
		for _, tagged := range payload.Topics {
			if tagged == topic {
				score += topicMatchBoost
				break
			}
		}
	}
	return score
}

// StrategyByName resolves a configured strategy name.
func StrategyByName(name string) (BoostStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case config.StrategyMultiplicative, "":
		return Multiplicative{}, nil
	case config.StrategyAdditive:
		return Additive{}, nil
	default:
		return nil, fmt.Errorf("unknown boost strategy: %s", name)
	}
}

var (
	_ BoostStrategy = Multiplicative{}
	_ BoostStrategy = Additive{}
)

type Ranker struct {
	strategy BoostStrategy
}

// NewRanker returns a ranker applying strategy to hinted hits. A nil
// strategy means Multiplicative.
func NewRanker(strategy BoostStrategy) *Ranker {
	if strategy == nil {
		strategy = Multiplicative{}
	}
	return &Ranker{strategy: strategy}
}

func (r *Ranker) Strategy() BoostStrategy {
	return r.strategy
}

// Rank drops repeated (filename, chunk index) hits keeping the first, boosts
// the scores for lexical overlap with query and for hints, and sorts best
// first. Equal scores keep their input order. The input is not modified.
func (r *Ranker) Rank(results []Result, query string, hints Hints) []Result {
	ranked := dedupe(results)
	terms := queryTerms(query)
	useHints := !hints.Empty()

	for i := range ranked {
		score := ranked[i].Score + lexicalBoost(ranked[i].Payload, terms)
		if useHints {
			score = r.strategy.Boost(score, ranked[i].Payload, hints)
		}
		ranked[i].Score = score
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, res := range results {
		key := res.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, res)
	}
	return out
}

// queryTerms lower-cases query and keeps whitespace separated words longer
// than three characters. Repeated words count more than once.
func queryTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(field)) >= minQueryTermRunes {
			terms = append(terms, field)
		}
	}
	return terms
}

// lexicalBoost adds 0.1 times the fraction of terms found in the text, plus
// 0.05 for each term found in the title.
func lexicalBoost(payload vectorstore.Payload, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	text := strings.ToLower(payload.Text)
	title := strings.ToLower(payload.Title)

	boost := 0.0
	matches := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			matches++
		}
		if strings.Contains(title, term) {
			boost += titleMatchBoost
		}
	}
	return boost + float64(matches)/float64(len(terms))*textMatchWeight
}
