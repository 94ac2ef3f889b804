// Package search answers queries against an ingested collection: it expands
// the query, embeds every variant, searches the vector store, re-ranks the
// merged hits and optionally synthesizes an answer from them.
package search

import "strings"

// MaxVariants caps the number of query strings Expand returns.
const MaxVariants = 5

// Term is one entry of the expansion table. Phrasings are tried in order and
// the first one found in the query is used to build the variants.
type Term struct {
	Name      string
	Phrasings []string
	FollowUps []string
}

var defaultTerms = []Term{
	{
		Name:      "mediterranean",
		Phrasings: []string{"mediterranean diet", "med diet", "mediterranean eating", "mediterranean"},
		FollowUps: []string{"heart health", "longevity"},
	},
	{
		Name:      "dash",
		Phrasings: []string{"dash diet", "dietary approaches to stop hypertension", "dash"},
		FollowUps: []string{"blood pressure", "hypertension"},
	},
	{
		Name:      "keto",
		Phrasings: []string{"ketogenic diet", "keto diet", "low carb high fat", "ketogenic", "keto"},
		FollowUps: []string{"weight loss", "epilepsy"},
	},
	{
		Name:      "paleo",
		Phrasings: []string{"paleolithic diet", "paleo diet", "stone age diet", "paleo"},
	},
	{
		Name:      "plant-based",
		Phrasings: []string{"plant based diet", "vegan diet", "vegetarian diet", "plant-based", "vegan"},
		FollowUps: []string{"protein sources", "nutritional considerations"},
	},
	{
		Name:      "intermittent fasting",
		Phrasings: []string{"intermittent fasting", "time restricted eating", "fasting diet"},
	},
}

var defaultQualifiers = []string{"benefits", "health effects", "advantages", "health impact", "nutrition"}

// Expander generates query variants from a closed vocabulary of known terms.
type Expander struct {
	terms      []Term
	qualifiers []string
}

type ExpanderOption func(*Expander)

func WithTerms(terms []Term) ExpanderOption {
	return func(e *Expander) {
		e.terms = terms
	}
}

func WithQualifiers(qualifiers []string) ExpanderOption {
	return func(e *Expander) {
		e.qualifiers = qualifiers
	}
}

func NewExpander(opts ...ExpanderOption) *Expander {
	e := &Expander{terms: defaultTerms, qualifiers: defaultQualifiers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the query followed by at most MaxVariants-1 variants. The
// first table term with a phrasing inside the query (case-insensitive)
// contributes "<phrasing> <follow-up>" variants, then "<phrasing>
// <qualifier>" for each qualifier the query does not already contain.
// Duplicates are dropped case-insensitively.
func (e *Expander) Expand(query string) []string {
	out := []string{query}
	lower := strings.ToLower(query)

	phrase, term, ok := e.match(lower)
	if !ok {
		return out
	}

	candidates := make([]string, 0, len(term.FollowUps)+len(e.qualifiers))
	for _, followUp := range term.FollowUps {
		candidates = append(candidates, phrase+" "+followUp)
	}
	for _, qualifier := range e.qualifiers {
		if strings.Contains(lower, strings.ToLower(qualifier)) {
			continue
		}
		candidates = append(candidates, phrase+" "+qualifier)
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	for _, candidate := range candidates {
		if len(out) == MaxVariants {
			break
		}
		key := strings.ToLower(candidate)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, candidate)
	}
	return out
}

func (e *Expander) match(lower string) (string, Term, bool) {
	for _, term := range e.terms {
		for _, phrasing := range term.Phrasings {
			p := strings.ToLower(phrasing)
			if p != "" && strings.Contains(lower, p) {
				return p, term, true
			}
		}
	}
	return "", Term{}, false
}
