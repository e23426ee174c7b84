package chunk

import "strings"

// Tokenizer counts tokens in a piece of text. Counts must be deterministic
// and additive over whitespace-joined concatenation so that per-chunk counts
// sum to the whole-text count.
type Tokenizer interface {
	Count(text string) int
}

// WordTokenizer counts whitespace-delimited words. It is the default: a
// conservative stand-in for a subword tokenizer that keeps chunk accounting
// exact without a model dependency.
type WordTokenizer struct{}

func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}
