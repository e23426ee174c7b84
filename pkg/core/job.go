package core

import (
	"time"
)

// JobStatus represents the current pipeline state of a job.
type JobStatus string

const (
	StatusPending         JobStatus = "pending"
	StatusDispatching     JobStatus = "dispatching"
	StatusTranscribing    JobStatus = "transcribing"
	StatusTranscribed     JobStatus = "transcribed"
	StatusTranslating     JobStatus = "translating"
	StatusTranslated      JobStatus = "translated"
	StatusGeneratingAudio JobStatus = "generating_audio"
	StatusCompleted       JobStatus = "completed"
	StatusFailed          JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IncompleteStatuses are the non-terminal, non-pending states a job can be
// stranded in by a crash. The dispatcher resets these to pending on startup.
var IncompleteStatuses = []JobStatus{
	StatusDispatching,
	StatusTranscribing,
	StatusTranscribed,
	StatusTranslating,
	StatusTranslated,
	StatusGeneratingAudio,
}

// Tuning holds optional synthesis overrides. Nil fields mean "engine default".
type Tuning struct {
	LengthScale *float64 `gorm:"column:length_scale"`
	NoiseScale  *float64 `gorm:"column:noise_scale"`
	NoiseWScale *float64 `gorm:"column:noise_w_scale"`
}

// Job is one narration task: upload → transcription/extraction →
// translation → synthesis → download. It is the durability anchor for the
// whole pipeline; every stage boundary is persisted on this row.
type Job struct {
	ID string `gorm:"primaryKey;size:36"`

	// File information
	Filename     string  `gorm:"size:255;not null"`
	OriginalPath string  `gorm:"size:500;not null"`
	OutputPath   *string `gorm:"size:500"`

	// Language settings
	SourceLanguage string `gorm:"size:10;default:'en'"`
	TargetLanguage string `gorm:"size:10;not null"`

	// Voice settings
	VoiceID string `gorm:"size:100;not null"`

	// Optional context hint passed to the translator
	Context string `gorm:"type:text"`

	// Content already in the target language; translation stage is skipped.
	SkipTranslation bool `gorm:"default:false"`

	Tuning Tuning `gorm:"embedded"`

	// Processing state
	Status   JobStatus `gorm:"index;size:20;default:'pending'"`
	Progress float64   `gorm:"default:0"` // 0.0 to 100.0

	// Intermediate results, persisted at stage boundaries
	Transcript  *string `gorm:"type:text"`
	Translation *string `gorm:"type:text"`

	ErrorMessage *string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	CompletedAt *time.Time
}

// ClaimedJob is an immutable snapshot taken at the moment a job is claimed.
// The executor works from this copy and never re-reads shared mutable job
// state during its run; its own writes go through Storage.
type ClaimedJob struct {
	ID              string
	FilePath        string
	SourceLang      string
	TargetLang      string
	VoiceID         string
	Context         string
	SkipTranslation bool
	Tuning          Tuning
}

// Snapshot builds the executor-facing copy of a claimed job.
func (j *Job) Snapshot() *ClaimedJob {
	return &ClaimedJob{
		ID:              j.ID,
		FilePath:        j.OriginalPath,
		SourceLang:      j.SourceLanguage,
		TargetLang:      j.TargetLanguage,
		VoiceID:         j.VoiceID,
		Context:         j.Context,
		SkipTranslation: j.SkipTranslation,
		Tuning:          j.Tuning,
	}
}
