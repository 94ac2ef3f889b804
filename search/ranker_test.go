package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/go-kb/config"
	"github.com/fabfab/go-kb/vectorstore"
)

func result(filename string, index int, score float64) Result {
	return Result{Hit: vectorstore.Hit{
		Score:   score,
		Payload: vectorstore.Payload{Filename: filename, ChunkIndex: index},
	}}
}

func TestRankDeduplicatesKeepingFirst(t *testing.T) {
	first := result("keto.txt", 0, 0.4)
	first.Variant = "keto"
	dup := result("keto.txt", 0, 0.9)
	dup.Variant = "keto diet epilepsy"

	ranked := NewRanker(nil).Rank([]Result{first, result("keto.txt", 1, 0.5), dup}, "", Hints{})

	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Payload.ChunkIndex)
	assert.Equal(t, "keto", ranked[1].Variant)
	assert.InDelta(t, 0.4, ranked[1].Score, 1e-9)
}

func TestRankStableForEqualScores(t *testing.T) {
	in := []Result{
		result("a.txt", 0, 0.5),
		result("b.txt", 0, 0.7),
		result("c.txt", 0, 0.5),
		result("d.txt", 0, 0.5),
	}
	ranked := NewRanker(nil).Rank(in, "is it ok", Hints{})

	var names []string
	for _, r := range ranked {
		names = append(names, r.Payload.Filename)
	}
	assert.Equal(t, []string{"b.txt", "a.txt", "c.txt", "d.txt"}, names)
	assert.InDelta(t, 0.5, in[0].Score, 1e-9, "input must not be modified")
}

func TestLexicalBoost(t *testing.T) {
	payload := vectorstore.Payload{Text: "Olive oil has many benefits.", Title: "Olive Oil"}

	// "oil" is too short to count, leaving two terms that both match.
	assert.InDelta(t, 0.15, lexicalBoost(payload, queryTerms("Olive oil benefits")), 1e-9)
	assert.InDelta(t, 0.05+0.1/3, lexicalBoost(payload, queryTerms("olive tree pruning")), 1e-9)
	assert.Zero(t, lexicalBoost(payload, queryTerms("a b c")))
}

func TestQueryTermsKeepsRepeats(t *testing.T) {
	assert.Equal(t, []string{"keto", "keto", "diet"}, queryTerms("Keto keto is a DIET"))
}

func TestMultiplicativeBoost(t *testing.T) {
	hints := Hints{Documents: []DocumentHint{{Filename: "keto.txt", Score: 8}, {Filename: "keto.txt", Score: 2}}}
	in := []Result{result("dash.txt", 0, 0.6), result("keto.txt", 0, 0.5)}

	ranked := NewRanker(Multiplicative{}).Rank(in, "", hints)

	require.Len(t, ranked, 2)
	assert.Equal(t, "keto.txt", ranked[0].Payload.Filename)
	assert.InDelta(t, 0.7, ranked[0].Score, 1e-9)
	assert.InDelta(t, 0.6, ranked[1].Score, 1e-9)
}

func TestAdditiveBoost(t *testing.T) {
	hints := Hints{Topics: []string{"keto", "health benefits"}}
	tagged := result("keto.txt", 0, 0.2)
	tagged.Payload.Topics = []string{"keto", "health benefits", "epilepsy"}

	ranked := NewRanker(Additive{}).Rank([]Result{result("dash.txt", 0, 0.4), tagged}, "", hints)

	assert.Equal(t, "keto.txt", ranked[0].Payload.Filename)
	assert.InDelta(t, 0.5, ranked[0].Score, 1e-9)
}

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("Additive")
	require.NoError(t, err)
	assert.Equal(t, config.StrategyAdditive, s.Name())

	s, err = StrategyByName("")
	require.NoError(t, err)
	assert.Equal(t, config.StrategyMultiplicative, s.Name())

	_, err = StrategyByName("exponential")
	assert.Error(t, err)
}
