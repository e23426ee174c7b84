package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrepareForTTS_EmptyInputIsReturnedUnchanged(t *testing.T) {
	var p Preprocessor
	assert.Equal(t, "", p.PrepareForTTS(""))
	assert.Equal(t, "   \n\n ", p.PrepareForTTS("   \n\n "))
}

func TestPrepareForTTS_CollapsesWhitespaceWithinParagraphs(t *testing.T) {
	var p Preprocessor

	got := p.PrepareForTTS("One  two\tthree.\nFour five.")
	assert.Equal(t, "One two three. Four five.", got)
}

func TestPrepareForTTS_KeepsParagraphSeparation(t *testing.T) {
	var p Preprocessor

	got := p.PrepareForTTS("First paragraph.\n\n\nSecond paragraph.")
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", got)
}

func TestPrepareForTTS_AddsPeriodToLongUnterminatedSentence(t *testing.T) {
	var p Preprocessor

	long := strings.Repeat("word ", 10) + "without any closing punctuation"
	got := p.PrepareForTTS(long)
	assert.True(t, strings.HasSuffix(got, "."), "long fragment gains a period: %q", got)
}

func TestPrepareForTTS_LeavesShortFragmentsAlone(t *testing.T) {
	var p Preprocessor

	got := p.PrepareForTTS("Chapter One")
	assert.Equal(t, "Chapter One", got, "headings stay unpunctuated")
}

func TestPrepareForTTS_PreservesExistingPunctuation(t *testing.T) {
	var p Preprocessor

	text := "Is this a question? It is! And an ellipsis follows…"
	got := p.PrepareForTTS(text)
	assert.Equal(t, text, got)
}

func TestPrepareForTTS_DropsEmptyParagraphs(t *testing.T) {
	var p Preprocessor

	got := p.PrepareForTTS("First.\n\n   \n\nSecond.")
	assert.Equal(t, "First.\n\nSecond.", got)
}

func TestInferFileType_ClassifiesByExtension(t *testing.T) {
	assert.Equal(t, FileTypeText, InferFileType("/data/uploads/book.epub"))
	assert.Equal(t, FileTypeText, InferFileType("/data/uploads/notes.TXT"))
	assert.Equal(t, FileTypeAudio, InferFileType("/data/uploads/talk.mp3"))
	assert.Equal(t, FileTypeAudio, InferFileType("/data/uploads/no-extension"))
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("a.wav"))
	assert.True(t, SupportedExtension("a.pdf"))
	assert.False(t, SupportedExtension("a.exe"))
	assert.False(t, SupportedExtension("noext"))
}
