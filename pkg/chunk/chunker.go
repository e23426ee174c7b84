package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator joins paragraphs within a chunk and re-joins chunks into the
// full text. It matches the paragraph delimiter the splitter recognises.
const Separator = "\n\n"

// MinMaxTokens is the smallest usable chunk budget. Anything lower degrades
// into per-sentence fragments that translate poorly.
const MinMaxTokens = 100

// ErrInvalidInput is the base error for caller mistakes: empty text or an
// unusable token budget. Surfaced immediately, never retried.
var ErrInvalidInput = errors.New("chunk: invalid input")

var (
	paragraphSep     = regexp.MustCompile(`\n{2,}`)
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)
)

// Chunker splits text into token-bounded segments.
type Chunker struct {
	tok                Tokenizer
	preserveParagraphs bool
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTokenizer replaces the default word-count tokenizer.
func WithTokenizer(tok Tokenizer) Option {
	return func(c *Chunker) { c.tok = tok }
}

// WithParagraphPreservation controls whether oversized paragraphs are split
// into sentences (true, the default) or emitted standalone unchanged.
func WithParagraphPreservation(preserve bool) Option {
	return func(c *Chunker) { c.preserveParagraphs = preserve }
}

// New creates a Chunker with the default word tokenizer and paragraph
// preservation enabled.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		tok:                WordTokenizer{},
		preserveParagraphs: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CountTokens returns the token count of text under the configured tokenizer.
func (c *Chunker) CountTokens(text string) int {
	return c.tok.Count(text)
}

// Split partitions text into chunks of at most maxTokens tokens each.
//
// Paragraphs (double-newline separated) are accumulated greedily: a chunk is
// closed only when adding the next paragraph would exceed the budget, so
// every non-final chunk is as full as paragraph boundaries allow. No
// paragraph is split across chunks and no text is repeated between chunks;
// joining the result with Separator reproduces the original paragraph
// sequence. The only chunk that may exceed maxTokens is a single sentence
// that alone is over the budget; it is emitted standalone rather than
// dropped or truncated.
func (c *Chunker) Split(text string, maxTokens int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot chunk empty text", ErrInvalidInput)
	}
	if maxTokens < MinMaxTokens {
		return nil, fmt.Errorf("%w: max tokens must be at least %d, got %d", ErrInvalidInput, MinMaxTokens, maxTokens)
	}

	// Small enough already: no splitting performed.
	if c.tok.Count(text) <= maxTokens {
		return []string{text}, nil
	}

	var (
		chunks    []string
		current   []string
		curTokens int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, Separator))
			current = nil
			curTokens = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		n := c.tok.Count(para)

		if n > maxTokens {
			// A lone paragraph over budget: close the pending chunk, then
			// either sentence-pack it or pass it through whole.
			flush()
			if c.preserveParagraphs {
				chunks = append(chunks, c.packSentences(para, maxTokens)...)
			} else {
				chunks = append(chunks, para)
			}
			continue
		}

		if curTokens+n > maxTokens {
			flush()
		}
		current = append(current, para)
		curTokens += n
	}
	flush()

	return chunks, nil
}

// packSentences greedily packs the sentences of one oversized paragraph.
// A single sentence exceeding the budget is emitted on its own.
func (c *Chunker) packSentences(paragraph string, maxTokens int) []string {
	var (
		out       []string
		current   []string
		curTokens int
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
			curTokens = 0
		}
	}

	for _, sentence := range splitSentences(paragraph) {
		n := c.tok.Count(sentence)
		if n > maxTokens {
			flush()
			out = append(out, sentence)
			continue
		}
		if curTokens+n > maxTokens {
			flush()
		}
		current = append(current, sentence)
		curTokens += n
	}
	flush()

	return out
}

func splitParagraphs(text string) []string {
	parts := paragraphSep.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences cuts after '.', '!' or '?' followed by whitespace. A simple
// heuristic on purpose; abbreviations mis-split into slightly smaller
// sentences, which only costs packing efficiency.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[start : loc[0]+1])
		if s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
