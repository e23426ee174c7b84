package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opennarrator/narrator/pkg/core"
)

// maxErrorMessageLength bounds what Fail persists; collaborator errors can
// embed whole API responses.
const maxErrorMessageLength = 2000

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying *gorm.DB.
func (s *GormStorage) DB() *gorm.DB { return s.db }

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// Create inserts a new job. Defaults the ID and pending status.
func (s *GormStorage) Create(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// ClaimNextPending atomically claims the oldest pending job by moving it to
// dispatching with a conditional update. The WHERE clause re-checks the
// status, so of N concurrent claimants exactly one sees RowsAffected == 1;
// the rest get (nil, nil) and treat the cycle as empty.
func (s *GormStorage) ClaimNextPending(ctx context.Context) (*core.ClaimedJob, error) {
	var job core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusPending).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ?", job.ID, core.StatusPending).
		Update("status", core.StatusDispatching)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Lost the race to another claimant.
		return nil, nil
	}

	return job.Snapshot(), nil
}

// ResetIncomplete returns every job stranded mid-pipeline to pending.
// Recovers from a crash; safe to run on every startup.
func (s *GormStorage) ResetIncomplete(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status IN ?", core.IncompleteStatuses).
		Update("status", core.StatusPending)
	return result.RowsAffected, result.Error
}

// SetStatus transitions a job's status and progress in one write.
func (s *GormStorage) SetStatus(ctx context.Context, jobID string, status core.JobStatus, progress float64) error {
	return s.update(ctx, jobID, map[string]any{
		"status":   status,
		"progress": progress,
	})
}

// SetProgress updates only the progress column.
func (s *GormStorage) SetProgress(ctx context.Context, jobID string, progress float64) error {
	return s.update(ctx, jobID, map[string]any{"progress": progress})
}

// SaveTranscript persists the transcription stage output and advances the
// job to transcribed at 30%.
func (s *GormStorage) SaveTranscript(ctx context.Context, jobID string, transcript string) error {
	return s.update(ctx, jobID, map[string]any{
		"transcript": transcript,
		"status":     core.StatusTranscribed,
		"progress":   30.0,
	})
}

// SaveTranslation persists the translation stage output and advances the
// job to translated at 70%.
func (s *GormStorage) SaveTranslation(ctx context.Context, jobID string, translation string) error {
	return s.update(ctx, jobID, map[string]any{
		"translation": translation,
		"status":      core.StatusTranslated,
		"progress":    70.0,
	})
}

// SaveOutputPath persists the synthesis output location at 95%.
func (s *GormStorage) SaveOutputPath(ctx context.Context, jobID string, outputPath string) error {
	return s.update(ctx, jobID, map[string]any{
		"output_path": outputPath,
		"progress":    95.0,
	})
}

// Complete marks a job finished at 100%.
func (s *GormStorage) Complete(ctx context.Context, jobID string) error {
	now := time.Now()
	return s.update(ctx, jobID, map[string]any{
		"status":       core.StatusCompleted,
		"progress":     100.0,
		"completed_at": now,
	})
}

// Fail marks a job failed with a sanitized error message. Progress is left
// at the last persisted value on purpose.
func (s *GormStorage) Fail(ctx context.Context, jobID string, errMsg string) error {
	return s.update(ctx, jobID, map[string]any{
		"status":        core.StatusFailed,
		"error_message": sanitizeError(errMsg),
	})
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &job, err
}

// GetJobsByStatus retrieves jobs by status, oldest first.
func (s *GormStorage) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// DeleteTerminalBefore removes completed and failed jobs created before the
// cutoff and returns the deleted rows so callers can clean their artifacts.
func (s *GormStorage) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) ([]*core.Job, error) {
	var aged []*core.Job
	err := s.db.WithContext(ctx).
		Where("status IN ?", []core.JobStatus{core.StatusCompleted, core.StatusFailed}).
		Where("created_at < ?", cutoff).
		Find(&aged).Error
	if err != nil || len(aged) == 0 {
		return nil, err
	}

	ids := make([]string, len(aged))
	for i, j := range aged {
		ids[i] = j.ID
	}
	if err := s.db.WithContext(ctx).Delete(&core.Job{}, "id IN ?", ids).Error; err != nil {
		return nil, err
	}
	return aged, nil
}

func (s *GormStorage) update(ctx context.Context, jobID string, fields map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

func sanitizeError(msg string) string {
	if len(msg) > maxErrorMessageLength {
		return msg[:maxErrorMessageLength] + "... (truncated)"
	}
	return msg
}
