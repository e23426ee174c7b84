// Package pipeline runs the ordered stage sequence for one claimed job:
// extract or transcribe, translate, synthesize, finalize. Every stage
// boundary is persisted and broadcast, so a crash never loses more than the
// stage in flight and observers always see a consistent progress trail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opennarrator/narrator/pkg/core"
	"github.com/opennarrator/narrator/pkg/translate"
)

// Translator converts a whole transcript, chunking internally.
// *translate.Service is the production implementation.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang, contextHint string, onProgress translate.ProgressFunc) (string, error)
}

// Engines bundles the heavyweight collaborators a job run needs. Extractor
// may be nil when only audio uploads are accepted, and vice versa.
type Engines struct {
	Extractor   core.Extractor
	Transcriber core.Transcriber
	Translator  Translator
	Synthesizer core.Synthesizer
}

// Executor drives one job at a time through the pipeline. It is safe for
// concurrent use; each Run carries its own progress state.
type Executor struct {
	storage     core.Storage
	broadcaster core.Broadcaster
	engines     Engines
	pre         Preprocessor
	uploadDir   string
	log         *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithBroadcaster sets the progress broadcaster.
func WithBroadcaster(b core.Broadcaster) Option {
	return func(e *Executor) { e.broadcaster = b }
}

// WithUploadDir enables removal of the original upload after completion.
// Only files inside dir are ever deleted.
func WithUploadDir(dir string) Option {
	return func(e *Executor) { e.uploadDir = dir }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// NewExecutor creates a pipeline executor.
func NewExecutor(storage core.Storage, engines Engines, opts ...Option) *Executor {
	e := &Executor{
		storage:     storage,
		broadcaster: nopBroadcaster{},
		engines:     engines,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(core.ProgressUpdate) {}

// run holds the per-job progress state. Engine callbacks may arrive from
// other goroutines, so every progress write goes through the mutex.
type run struct {
	e   *Executor
	job *core.ClaimedJob
	log *slog.Logger

	mu           sync.Mutex
	lastProgress float64
}

// Run executes the full pipeline for a claimed job. Collaborator failures
// are recorded on the job and returned; they must not crash the caller.
func (e *Executor) Run(ctx context.Context, job *core.ClaimedJob) (err error) {
	r := &run{e: e, job: job, log: e.log.With("job_id", job.ID)}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline panicked", "panic", rec)
			msg := fmt.Sprintf("Unexpected error: %v", rec)
			if ferr := e.storage.Fail(context.WithoutCancel(ctx), job.ID, msg); ferr != nil {
				r.log.Error("failed to record panic on job", "error", ferr)
			}
			r.emit(core.StatusFailed, r.progress(), msg)
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()

	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) error {
	transcript, err := r.stageTranscribe(ctx)
	if err != nil {
		return err
	}

	translation, err := r.stageTranslate(ctx, transcript)
	if err != nil {
		return err
	}

	if err := r.stageSynthesize(ctx, translation); err != nil {
		return err
	}

	return r.stageFinalize(ctx)
}

// stageTranscribe obtains the source text: extraction for documents,
// transcription for audio. Progress 0 to 30.
func (r *run) stageTranscribe(ctx context.Context) (string, error) {
	var (
		transcript string
		err        error
	)

	if InferFileType(r.job.FilePath) == FileTypeText {
		r.log.Info("stage 1: extracting text")
		if terr := r.transition(ctx, core.StatusTranscribing, 0, "Extracting text from file..."); terr != nil {
			return "", r.fail(ctx, core.StatusTranscribing, core.StageExtraction, terr)
		}
		transcript, err = r.e.engines.Extractor.Extract(ctx, r.job.FilePath)
		if err != nil {
			return "", r.fail(ctx, core.StatusTranscribing, core.StageExtraction, err)
		}
	} else {
		r.log.Info("stage 1: transcribing audio")
		if terr := r.transition(ctx, core.StatusTranscribing, 0, "Starting transcription..."); terr != nil {
			return "", r.fail(ctx, core.StatusTranscribing, core.StageTranscription, terr)
		}
		onProgress := func(segments int) {
			// Total segment count is unknown upfront; advance ~0.5% per
			// segment and cap below 30 to leave room for the stage close.
			progress := math.Min(28, float64(segments)*0.5)
			r.report(ctx, core.StatusTranscribing, progress,
				fmt.Sprintf("Transcribing audio... (%d segments processed)", segments))
		}
		transcript, err = r.e.engines.Transcriber.Transcribe(ctx, r.job.FilePath, r.job.SourceLang, onProgress)
		if err != nil {
			return "", r.fail(ctx, core.StatusTranscribing, core.StageTranscription, err)
		}
	}

	if err := r.e.storage.SaveTranscript(ctx, r.job.ID, transcript); err != nil {
		return "", r.fail(ctx, core.StatusTranscribing, core.StageTranscription, err)
	}
	r.setProgress(30)
	r.emit(core.StatusTranscribed, 30, "Transcription complete")
	r.log.Info("transcript ready", "chars", len(transcript))
	return transcript, nil
}

// stageTranslate converts the transcript to the target language, or copies
// it through when the job opts out. Progress 30 to 70.
func (r *run) stageTranslate(ctx context.Context, transcript string) (string, error) {
	if r.job.SkipTranslation {
		r.log.Info("stage 2: translation skipped")
		if err := r.e.storage.SaveTranslation(ctx, r.job.ID, transcript); err != nil {
			return "", r.fail(ctx, core.StatusTranslating, core.StageTranslation, err)
		}
		r.setProgress(70)
		r.emit(core.StatusTranslated, 70, "Translation skipped (content already in target language)")
		return transcript, nil
	}

	r.log.Info("stage 2: translating")
	if err := r.transition(ctx, core.StatusTranslating, 30, "Starting translation..."); err != nil {
		return "", r.fail(ctx, core.StatusTranslating, core.StageTranslation, err)
	}

	onProgress := func(done, total int, message string) {
		frac := 0.0
		if total > 0 {
			frac = float64(done) / float64(total)
		}
		r.report(ctx, core.StatusTranslating, 30+frac*40, message)
	}
	translation, err := r.e.engines.Translator.Translate(
		ctx, transcript, r.job.SourceLang, r.job.TargetLang, r.job.Context, onProgress)
	if err != nil {
		return "", r.fail(ctx, core.StatusTranslating, core.StageTranslation, err)
	}

	if err := r.e.storage.SaveTranslation(ctx, r.job.ID, translation); err != nil {
		return "", r.fail(ctx, core.StatusTranslating, core.StageTranslation, err)
	}
	r.setProgress(70)
	r.emit(core.StatusTranslated, 70, "Translation complete")
	r.log.Info("translation ready", "chars", len(translation))
	return translation, nil
}

// stageSynthesize renders the narrated audio. Progress 70 to 95.
func (r *run) stageSynthesize(ctx context.Context, translation string) error {
	r.log.Info("stage 3: generating audio")
	if err := r.transition(ctx, core.StatusGeneratingAudio, 70, "Generating audio..."); err != nil {
		return r.fail(ctx, core.StatusGeneratingAudio, core.StageSynthesis, err)
	}

	onProgress := func(frac float64) {
		message := fmt.Sprintf("Generating audio... %.1f%%", frac*100)
		if frac >= 1 {
			message = "Generating audio... finalizing"
		}
		r.report(ctx, core.StatusGeneratingAudio, 70+frac*25, message)
	}
	prepared := r.e.pre.PrepareForTTS(translation)
	outputPath, err := r.e.engines.Synthesizer.Synthesize(
		ctx, prepared, r.job.VoiceID, r.job.TargetLang, r.job.Tuning, onProgress)
	if err != nil {
		return r.fail(ctx, core.StatusGeneratingAudio, core.StageSynthesis, err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return r.fail(ctx, core.StatusGeneratingAudio, core.StageSynthesis,
			fmt.Errorf("output file not found: %s", outputPath))
	}

	if err := r.e.storage.SaveOutputPath(ctx, r.job.ID, outputPath); err != nil {
		return r.fail(ctx, core.StatusGeneratingAudio, core.StageSynthesis, err)
	}
	r.setProgress(95)
	r.emit(core.StatusGeneratingAudio, 95, "Audio generation complete")
	r.log.Info("audio ready", "output", outputPath)
	return nil
}

// stageFinalize marks the job done and removes the original upload.
// Progress 95 to 100.
func (r *run) stageFinalize(ctx context.Context) error {
	r.log.Info("stage 4: finalizing")
	if err := r.e.storage.Complete(ctx, r.job.ID); err != nil {
		return r.fail(ctx, core.StatusGeneratingAudio, core.StageFinalization, err)
	}
	r.setProgress(100)
	r.emit(core.StatusCompleted, 100, "Processing complete! Ready for download.")

	r.cleanupUpload()
	r.log.Info("pipeline complete")
	return nil
}

// cleanupUpload removes the source file once the job is done. Best effort,
// and never touches anything outside the configured upload directory.
func (r *run) cleanupUpload() {
	if r.e.uploadDir == "" {
		return
	}
	absDir, err := filepath.Abs(r.e.uploadDir)
	if err != nil {
		return
	}
	absFile, err := filepath.Abs(r.job.FilePath)
	if err != nil {
		return
	}
	if !strings.HasPrefix(absFile, absDir+string(filepath.Separator)) {
		return
	}
	if err := os.Remove(absFile); err != nil && !os.IsNotExist(err) {
		r.log.Warn("failed to remove original upload", "path", absFile, "error", err)
	}
}

// fail records a stage failure on the job and notifies observers. Progress
// stays wherever the last successful write left it.
//
// Cancellation is not failure: when the job context was cancelled the row is
// left at its last durably persisted state, so the next startup sweep
// returns it to pending and the job is redone from scratch.
func (r *run) fail(ctx context.Context, at core.JobStatus, stage core.Stage, cause error) error {
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		r.log.Info("stage cancelled", "stage", stage)
		return fmt.Errorf("job cancelled during %s: %w", stage, cause)
	}

	stageErr := core.StageFailure(stage, cause)
	r.log.Error("stage failed", "stage", stage, "error", cause)

	if err := r.e.storage.Fail(context.WithoutCancel(ctx), r.job.ID, stageErr.Error()); err != nil {
		r.log.Error("failed to record job failure", "error", err)
	}
	r.emit(core.StatusFailed, r.progress(),
		fmt.Sprintf("Failed at %s stage: %s", at, stageErr.Error()))
	return stageErr
}

// transition persists a status change and announces the new stage.
func (r *run) transition(ctx context.Context, status core.JobStatus, progress float64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.e.storage.SetStatus(ctx, r.job.ID, status, progress); err != nil {
		return err
	}
	r.lastProgress = progress
	r.emit(status, progress, message)
	return nil
}

// report persists and broadcasts mid-stage progress from engine callbacks.
// Write failures are logged, not propagated; progress is advisory.
func (r *run) report(ctx context.Context, status core.JobStatus, progress float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.e.storage.SetProgress(ctx, r.job.ID, progress); err != nil {
		r.log.Error("failed to persist progress", "error", err)
		return
	}
	r.lastProgress = progress
	r.emit(status, progress, message)
}

func (r *run) setProgress(p float64) {
	r.mu.Lock()
	r.lastProgress = p
	r.mu.Unlock()
}

func (r *run) progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastProgress
}

func (r *run) emit(status core.JobStatus, progress float64, message string) {
	r.e.broadcaster.Broadcast(core.ProgressUpdate{
		JobID:     r.job.ID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now(),
	})
}
