package core

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies one step of the pipeline for progress and error tagging.
type Stage string

const (
	StageExtraction    Stage = "extraction"
	StageTranscription Stage = "transcription"
	StageTranslation   Stage = "translation"
	StageSynthesis     Stage = "audio generation"
	StageFinalization  Stage = "finalization"
)

var (
	ErrJobNotFound   = errors.New("narrator: job not found")
	ErrJobNotInState = errors.New("narrator: job not in expected state")
)

// StageError tags a collaborator failure with the pipeline stage it occurred
// in. The executor records it on the job and stops; it is never retried.
type StageError struct {
	Stage Stage
	Err   error
}

// Error renders as e.g. "Transcription failed: connection refused"; the
// message is stored on the job and shown to users verbatim.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", capitalize(string(e.Stage)), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageFailure wraps an error with its stage.
func StageFailure(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
