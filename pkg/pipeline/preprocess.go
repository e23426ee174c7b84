package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minSentenceLength is the size below which an unterminated fragment is left
// alone; short fragments are usually headings or list items, not sentences.
const minSentenceLength = 40

var (
	preParagraphSep  = regexp.MustCompile(`\n{2,}`)
	preWhitespaceRun = regexp.MustCompile(`\s+`)
	preSentenceEnd   = regexp.MustCompile(`[.!?…]\s+`)
)

// Preprocessor heuristically prepares book-length text for more natural
// narration: whitespace is normalized and long unterminated sentences get a
// closing period so the synthesizer pauses where a reader would.
type Preprocessor struct{}

// PrepareForTTS normalizes whitespace and ensures paragraphs end with
// punctuation. Empty input is returned unchanged.
func (Preprocessor) PrepareForTTS(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	var cleaned []string
	for _, paragraph := range preParagraphSep.Split(text, -1) {
		if normalized := normalizeParagraph(paragraph); normalized != "" {
			cleaned = append(cleaned, normalized)
		}
	}
	return strings.Join(cleaned, "\n\n")
}

func normalizeParagraph(paragraph string) string {
	var lines []string
	for _, line := range strings.Split(paragraph, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	flat := preWhitespaceRun.ReplaceAllString(strings.Join(lines, " "), " ")

	var processed []string
	for _, sentence := range splitAfterSentenceEnd(flat) {
		if !endsWithPunctuation(sentence) && utf8.RuneCountInString(sentence) >= minSentenceLength {
			sentence += "."
		}
		processed = append(processed, sentence)
	}
	return strings.Join(processed, " ")
}

// splitAfterSentenceEnd cuts after terminal punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitAfterSentenceEnd(text string) []string {
	var out []string
	start := 0
	for _, loc := range preSentenceEnd.FindAllStringIndex(text, -1) {
		_, size := utf8.DecodeRuneInString(text[loc[0]:])
		if s := strings.TrimSpace(text[start : loc[0]+size]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func endsWithPunctuation(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
