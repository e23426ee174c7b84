// Package narrator provides a durable translation-narration pipeline:
// uploaded audio or documents are transcribed, translated, and rendered as
// narrated speech, with every job persisted through a database-backed queue.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Create storage
//	db, _ := gorm.Open(sqlite.Open("narrator.db"), &gorm.Config{})
//	store := narrator.NewGormStorage(db)
//	store.Migrate(context.Background())
//
//	// Wire the pipeline and dispatcher
//	exec := narrator.NewExecutor(store, narrator.Engines{
//	    Transcriber: whisper, Translator: translator, Synthesizer: piper,
//	})
//	d := narrator.NewDispatcher(store, exec)
//	d.Start(ctx)
//
//	// Submit work
//	job, _ := narrator.Submit(ctx, store, narrator.SubmitRequest{
//	    Filename:       "lecture.mp3",
//	    OriginalPath:   "/data/uploads/lecture.mp3",
//	    SourceLanguage: "en",
//	    TargetLanguage: "ro",
//	    VoiceID:        "ro_RO-mihai-medium",
//	})
package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/opennarrator/narrator/pkg/broadcast"
	"github.com/opennarrator/narrator/pkg/chunk"
	"github.com/opennarrator/narrator/pkg/core"
	"github.com/opennarrator/narrator/pkg/dispatch"
	"github.com/opennarrator/narrator/pkg/lang"
	"github.com/opennarrator/narrator/pkg/pipeline"
	"github.com/opennarrator/narrator/pkg/schedule"
	"github.com/opennarrator/narrator/pkg/storage"
	"github.com/opennarrator/narrator/pkg/translate"
)

// Type aliases for the public API surface.
type (
	// Job is one narration task and its durable state.
	Job = core.Job

	// ClaimedJob is the immutable snapshot an executor works from.
	ClaimedJob = core.ClaimedJob

	// JobStatus represents the current pipeline state of a job.
	JobStatus = core.JobStatus

	// Tuning holds optional synthesis overrides.
	Tuning = core.Tuning

	// Storage defines the persistence layer for jobs.
	Storage = core.Storage

	// ProgressUpdate is broadcast after every job state transition.
	ProgressUpdate = core.ProgressUpdate

	// Broadcaster fans progress events out to observers.
	Broadcaster = core.Broadcaster

	// StageError tags a collaborator failure with its pipeline stage.
	StageError = core.StageError

	// Extractor pulls plain text out of an uploaded document.
	Extractor = core.Extractor

	// Transcriber converts speech audio to text.
	Transcriber = core.Transcriber

	// ChunkTranslator translates a single token-bounded chunk.
	ChunkTranslator = core.ChunkTranslator

	// Synthesizer renders narrated audio.
	Synthesizer = core.Synthesizer

	// Engines bundles the pipeline's heavyweight collaborators.
	Engines = pipeline.Engines

	// Executor runs one claimed job through the stage sequence.
	Executor = pipeline.Executor

	// Dispatcher owns the claim loop and concurrency bound.
	Dispatcher = dispatch.Dispatcher

	// Chunker splits text into token-bounded segments.
	Chunker = chunk.Chunker

	// Tokenizer counts tokens for the chunker.
	Tokenizer = chunk.Tokenizer

	// Hub delivers progress updates to in-process subscribers.
	Hub = broadcast.Hub

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// Schedule defines when recurring maintenance runs next.
	Schedule = schedule.Schedule
)

// Job status constants.
const (
	StatusPending         = core.StatusPending
	StatusDispatching     = core.StatusDispatching
	StatusTranscribing    = core.StatusTranscribing
	StatusTranscribed     = core.StatusTranscribed
	StatusTranslating     = core.StatusTranslating
	StatusTranslated      = core.StatusTranslated
	StatusGeneratingAudio = core.StatusGeneratingAudio
	StatusCompleted       = core.StatusCompleted
	StatusFailed          = core.StatusFailed
)

// Error variables.
var (
	ErrJobNotFound    = core.ErrJobNotFound
	ErrInvalidInput   = chunk.ErrInvalidInput
	ErrInvalidRequest = fmt.Errorf("narrator: invalid submit request")
)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewExecutor creates a pipeline executor.
func NewExecutor(s Storage, engines Engines, opts ...pipeline.Option) *Executor {
	return pipeline.NewExecutor(s, engines, opts...)
}

// NewDispatcher creates a dispatcher around a runner.
func NewDispatcher(s Storage, runner dispatch.Runner, opts ...dispatch.Option) *Dispatcher {
	return dispatch.New(s, runner, opts...)
}

// NewTranslator creates the chunking translation service around a
// per-chunk engine.
func NewTranslator(engine ChunkTranslator, opts ...translate.Option) *translate.Service {
	return translate.NewService(engine, opts...)
}

// NewChunker creates a text chunker.
func NewChunker(opts ...chunk.Option) *Chunker {
	return chunk.New(opts...)
}

// NewHub creates an in-process progress hub.
func NewHub() *Hub {
	return broadcast.NewHub(nil)
}

// Schedule functions.

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// SubmitRequest describes a new narration job.
type SubmitRequest struct {
	Filename        string
	OriginalPath    string
	SourceLanguage  string // BCP 47; defaults to "en"
	TargetLanguage  string // BCP 47; required
	VoiceID         string
	Context         string
	SkipTranslation bool
	Tuning          Tuning
}

// Submit validates the request, normalizes its language codes, and creates
// the job in PENDING state. When source and target name the same base
// language the translation stage is skipped automatically. A running
// dispatcher picks the job up on its next poll; Submit itself never blocks
// on pipeline work.
func Submit(ctx context.Context, s Storage, req SubmitRequest) (*Job, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.OriginalPath) == "" {
		return nil, fmt.Errorf("%w: original path is required", ErrInvalidRequest)
	}
	if !pipeline.SupportedExtension(req.Filename) {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidRequest, req.Filename)
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, fmt.Errorf("%w: voice id is required", ErrInvalidRequest)
	}

	source := req.SourceLanguage
	if strings.TrimSpace(source) == "" {
		source = "en"
	}
	sourceLang, err := lang.Normalize(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	targetLang, err := lang.Normalize(req.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	skip := req.SkipTranslation || lang.Same(sourceLang, targetLang)

	job := &Job{
		Filename:        req.Filename,
		OriginalPath:    req.OriginalPath,
		SourceLanguage:  sourceLang,
		TargetLanguage:  targetLang,
		VoiceID:         req.VoiceID,
		Context:         req.Context,
		SkipTranslation: skip,
		Tuning:          req.Tuning,
		Status:          StatusPending,
	}
	if err := s.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}
