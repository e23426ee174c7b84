package core

import (
	"context"
	"time"
)

// Storage defines the persistence layer for jobs. The jobs table is the
// single source of truth: claim atomicity and the startup reset sweep are
// what make the table behave as a durable work queue.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Intake
	Create(ctx context.Context, job *Job) error

	// ClaimNextPending atomically transitions the oldest pending job to
	// dispatching and returns its snapshot. Returns (nil, nil) when there is
	// no pending job or another claimant won the race.
	ClaimNextPending(ctx context.Context) (*ClaimedJob, error)

	// ResetIncomplete returns every job stranded in a non-terminal,
	// non-pending state to pending. Idempotent; called on startup.
	ResetIncomplete(ctx context.Context) (int64, error)

	// Stage boundaries
	SetStatus(ctx context.Context, jobID string, status JobStatus, progress float64) error
	SetProgress(ctx context.Context, jobID string, progress float64) error
	SaveTranscript(ctx context.Context, jobID string, transcript string) error
	SaveTranslation(ctx context.Context, jobID string, translation string) error
	SaveOutputPath(ctx context.Context, jobID string, outputPath string) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, errMsg string) error

	// Queries
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)

	// Retention
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]*Job, error)
}
