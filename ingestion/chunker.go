package ingestion

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultTargetSize      = 1000
	defaultOverlapFraction = 0.2
	defaultPreviewLength   = 50
)

// Chunk is a contiguous run of paragraphs from one document.
type Chunk struct {
	Index      int
	Text       string
	Paragraphs []string
	WordCount  int
	Topics     []string
	Preview    string
}

// Chunker splits plain text into paragraph-aligned chunks of roughly
// TargetSize words. Consecutive chunks share trailing paragraphs whose
// combined word count stays within TargetSize*OverlapFraction.
type Chunker struct {
	targetSize      int
	overlapFraction float64
	previewLength   int
}

type ChunkerOption func(*Chunker)

func WithTargetSize(words int) ChunkerOption {
	return func(c *Chunker) {
		if words > 0 {
			c.targetSize = words
		}
	}
}

func WithOverlapFraction(fraction float64) ChunkerOption {
	return func(c *Chunker) {
		if fraction >= 0 && fraction < 1 {
			c.overlapFraction = fraction
		}
	}
}

func WithPreviewLength(chars int) ChunkerOption {
	return func(c *Chunker) {
		if chars > 0 {
			c.previewLength = chars
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		targetSize:      defaultTargetSize,
		overlapFraction: defaultOverlapFraction,
		previewLength:   defaultPreviewLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OverlapBudget is the most words a chunk may repeat from its predecessor.
func (c *Chunker) OverlapBudget() int {
	return int(float64(c.targetSize) * c.overlapFraction)
}

type paragraph struct {
	text  string
	words int
}

// Chunk splits text on blank lines and packs the paragraphs into chunks.
// Paragraphs are never split, so a paragraph longer than the target becomes
// an oversized chunk of its own. Topics are copied onto every chunk.
func (c *Chunker) Chunk(text string, topics []string) []Chunk {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	budget := c.OverlapBudget()

	var (
		chunks  []Chunk
		current []paragraph
		size    int
		// seeded counts the leading paragraphs of current carried over from
		// the previous chunk.
		seeded int
	)

	for i := 0; i < len(paragraphs); {
		p := paragraphs[i]

		// A chunk holding only carried-over paragraphs takes the next one even
		// when that overflows the target, like an oversized paragraph does.
		if len(current) > seeded && size+p.words > c.targetSize {
			chunks = append(chunks, c.build(len(chunks), current, topics))
			current, size = overlapTail(current, budget)
			seeded = len(current)
			continue
		}

		current = append(current, p)
		size += p.words
		i++
	}

	if len(current) > seeded {
		chunks = append(chunks, c.build(len(chunks), current, topics))
	}
	return chunks
}

// overlapTail walks backwards from the end of current, keeping paragraphs
// while their running total fits the budget. It stops at the first paragraph
// that would overflow.
func overlapTail(current []paragraph, budget int) ([]paragraph, int) {
	total := 0
	start := len(current)
	for j := len(current) - 1; j >= 0; j-- {
		if total+current[j].words > budget {
			break
		}
		total += current[j].words
		start = j
	}
	tail := make([]paragraph, len(current)-start)
	copy(tail, current[start:])
	return tail, total
}

func (c *Chunker) build(index int, paras []paragraph, topics []string) Chunk {
	texts := make([]string, len(paras))
	words := 0
	for i, p := range paras {
		texts[i] = p.text
		words += p.words
	}

	var chunkTopics []string
	if len(topics) > 0 {
		chunkTopics = append([]string(nil), topics...)
	}

	return Chunk{
		Index:      index,
		Text:       strings.Join(texts, "\n\n"),
		Paragraphs: texts,
		WordCount:  words,
		Topics:     chunkTopics,
		Preview:    preview(texts[0], c.previewLength),
	}
}

func splitParagraphs(text string) []paragraph {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n\n")

	out := make([]paragraph, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, paragraph{text: trimmed, words: len(strings.Fields(trimmed))})
	}
	return out
}

func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
