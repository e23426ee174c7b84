package core

import "context"

// The pipeline consumes heavyweight capabilities (document parsing, speech
// recognition, LLM translation, speech synthesis) through these narrow
// contracts. Implementations live outside this module; tests use echo stubs.

// Extractor pulls plain text out of an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Transcriber converts speech audio to text. onProgress, when non-nil, is
// invoked with a running segment count and may be called from any goroutine.
type Transcriber interface {
	Transcribe(ctx context.Context, path, language string, onProgress func(segments int)) (string, error)
}

// ChunkTranslator translates a single token-bounded chunk. The translate
// package drives it once per chunk and reassembles the results in order.
type ChunkTranslator interface {
	TranslateChunk(ctx context.Context, text, sourceLang, targetLang, contextHint string) (string, error)
}

// Synthesizer renders narrated audio and returns the output path. onProgress
// reports a 0.0–1.0 fraction and may be called from any goroutine.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, language string, tuning Tuning, onProgress func(fraction float64)) (string, error)
}
