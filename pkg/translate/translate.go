// Package translate turns a transcript into target-language text by driving
// an LLM-style chunk translator over token-bounded chunks.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opennarrator/narrator/pkg/chunk"
	"github.com/opennarrator/narrator/pkg/core"
)

// DefaultMaxTokens is the per-chunk token budget when none is configured.
// Large on purpose: modern LLM context windows fit whole chapters, and fewer
// chunks means fewer boundary artifacts.
const DefaultMaxTokens = 20000

// ProgressFunc reports chunk completion. done counts finished chunks, so it
// runs 0..total; message is human-readable and safe to surface directly.
type ProgressFunc func(done, total int, message string)

// Service translates arbitrarily long text chunk by chunk, in order, and
// reassembles the results. A failure on any chunk aborts the whole
// translation; partial output is never returned.
type Service struct {
	engine    core.ChunkTranslator
	chunker   *chunk.Chunker
	maxTokens int
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithChunker replaces the default chunker.
func WithChunker(c *chunk.Chunker) Option {
	return func(s *Service) { s.chunker = c }
}

// WithMaxTokens sets the per-chunk token budget.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a translation service around the given chunk translator.
func NewService(engine core.ChunkTranslator, opts ...Option) *Service {
	s := &Service{
		engine:    engine,
		chunker:   chunk.New(),
		maxTokens: DefaultMaxTokens,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Translate converts text from sourceLang to targetLang. contextHint, when
// non-empty, is passed to the engine with every chunk to keep terminology
// consistent across chunk boundaries. onProgress may be nil.
func (s *Service) Translate(ctx context.Context, text, sourceLang, targetLang, contextHint string, onProgress ProgressFunc) (string, error) {
	chunks, err := s.chunker.Split(text, s.maxTokens)
	if err != nil {
		return "", err
	}
	total := len(chunks)

	s.log.Info("starting translation",
		"source", sourceLang,
		"target", targetLang,
		"chunks", total,
		"tokens", s.chunker.CountTokens(text))

	if onProgress != nil {
		onProgress(0, total, fmt.Sprintf("Translating chunk 1/%d", total))
	}

	results := make([]string, 0, total)
	for i, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("translation cancelled at chunk %d/%d: %w", i+1, total, err)
		}

		translated, err := s.engine.TranslateChunk(ctx, ch, sourceLang, targetLang, contextHint)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, total, err)
		}
		results = append(results, strings.TrimSpace(translated))

		s.log.Debug("chunk translated", "chunk", i+1, "total", total)
		if onProgress != nil {
			onProgress(i+1, total, fmt.Sprintf("Translated chunk %d/%d", i+1, total))
		}
	}

	return strings.Join(results, chunk.Separator), nil
}
