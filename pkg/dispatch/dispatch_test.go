package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opennarrator/narrator/pkg/core"
	"github.com/opennarrator/narrator/pkg/schedule"
	"github.com/opennarrator/narrator/pkg/storage"
)

// newTestStorage opens a file-backed SQLite database so the dispatcher's
// goroutines can share it safely.
func newTestStorage(t *testing.T) *storage.GormStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite")

	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func newTestJob(filename string) *core.Job {
	return &core.Job{
		Filename:       filename,
		OriginalPath:   "/data/uploads/" + filename,
		SourceLanguage: "en",
		TargetLanguage: "ro",
		VoiceID:        "ro_RO-mihai-medium",
	}
}

// completingRunner marks every job completed, optionally blocking on gate
// first to hold slots open.
type completingRunner struct {
	storage core.Storage
	gate    chan struct{} // nil means run immediately
	active  atomic.Int32
	peak    atomic.Int32
	runs    atomic.Int32
}

func (r *completingRunner) Run(ctx context.Context, job *core.ClaimedJob) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	r.runs.Add(1)

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.storage.Complete(ctx, job.ID)
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []core.ProgressUpdate
}

func (r *recordingBroadcaster) Broadcast(u core.ProgressUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recordingBroadcaster) byMessage(msg string) []core.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.ProgressUpdate
	for _, u := range r.updates {
		if u.Message == msg {
			out = append(out, u)
		}
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Crash recovery
// ──────────────────────────────────────────────────────────────────────────────

func TestStart_ResetsStrandedJobsAndLeavesFailedAlone(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	stranded := newTestJob("crashed.mp3")
	stranded.Status = core.StatusTranslating
	require.NoError(t, s.Create(ctx, stranded))

	failed := newTestJob("failed.mp3")
	failed.Status = core.StatusFailed
	require.NoError(t, s.Create(ctx, failed))

	runner := &completingRunner{storage: s}
	d := New(s, runner, WithPollInterval(10*time.Millisecond))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	// The stranded job goes back to pending and is then picked up and run.
	require.Eventually(t, func() bool {
		job, err := s.GetJob(ctx, stranded.ID)
		return err == nil && job.Status == core.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond, "stranded job must be recovered and processed")

	got, err := s.GetJob(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status, "failed jobs stay failed across restarts")
}

func TestStart_SecondStartFails(t *testing.T) {
	s := newTestStorage(t)
	d := New(s, &completingRunner{storage: s}, WithPollInterval(10*time.Millisecond))

	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	assert.Error(t, d.Start(context.Background()))
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduling
// ──────────────────────────────────────────────────────────────────────────────

func TestDispatcher_ProcessesJobsInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	var ids []string
	for i := 0; i < 3; i++ {
		job := newTestJob("file.mp3")
		job.CreatedAt = time.Now().Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, s.Create(ctx, job))
		ids = append(ids, job.ID)
	}

	runner := &completingRunner{storage: s}
	d := New(s, runner, WithPollInterval(10*time.Millisecond), WithMaxConcurrent(1))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := s.GetJob(ctx, id)
			if err != nil || job.Status != core.StatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "all jobs must complete")

	assert.Equal(t, int32(3), runner.runs.Load())
}

func TestDispatcher_RespectsConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Create(ctx, newTestJob("file.mp3")))
	}

	gate := make(chan struct{})
	runner := &completingRunner{storage: s, gate: gate}
	d := New(s, runner,
		WithPollInterval(10*time.Millisecond),
		WithMaxConcurrent(2))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return runner.active.Load() == 2
	}, 5*time.Second, 10*time.Millisecond, "both slots must fill")

	// Give the loop a few more cycles; it must not exceed the bound.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), runner.active.Load())
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))

	close(gate)
	require.Eventually(t, func() bool {
		return runner.runs.Load() == 5 && runner.active.Load() == 0
	}, 5*time.Second, 10*time.Millisecond, "remaining jobs drain after release")
}

func TestDispatcher_BroadcastsAssignmentPerJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.Create(ctx, newTestJob("file.mp3")))

	bc := &recordingBroadcaster{}
	runner := &completingRunner{storage: s}
	d := New(s, runner, WithPollInterval(10*time.Millisecond), WithBroadcaster(bc))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return len(bc.byMessage("Assigning worker...")) == 1
	}, 5*time.Second, 10*time.Millisecond)

	got := bc.byMessage("Assigning worker...")[0]
	assert.Equal(t, core.StatusDispatching, got.Status)
	assert.Equal(t, 0.0, got.Progress)
}

// ──────────────────────────────────────────────────────────────────────────────
// Fault isolation and shutdown
// ──────────────────────────────────────────────────────────────────────────────

type panickingRunner struct {
	storage core.Storage
	panics  atomic.Int32
}

func (r *panickingRunner) Run(ctx context.Context, job *core.ClaimedJob) error {
	if r.panics.Add(1) == 1 {
		panic("runner exploded")
	}
	return r.storage.Complete(ctx, job.ID)
}

func TestDispatcher_SurvivesRunnerPanic(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	first := newTestJob("bad.mp3")
	first.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.Create(ctx, first))
	second := newTestJob("good.mp3")
	second.CreatedAt = time.Now().Add(-1 * time.Hour)
	require.NoError(t, s.Create(ctx, second))

	runner := &panickingRunner{storage: s}
	d := New(s, runner, WithPollInterval(10*time.Millisecond), WithMaxConcurrent(1))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		job, err := s.GetJob(ctx, second.ID)
		return err == nil && job.Status == core.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond, "the loop must keep going after a panic")
}

func TestStop_DrainsInFlightJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := newTestJob("slow.mp3")
	require.NoError(t, s.Create(ctx, job))

	gate := make(chan struct{})
	runner := &completingRunner{storage: s, gate: gate}
	d := New(s, runner, WithPollInterval(10*time.Millisecond))
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		return d.ActiveJobs() == 1
	}, 5*time.Second, 10*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(gate)
	}()
	d.Stop()

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status, "Stop returns only after the job finished")
	assert.Equal(t, 0, d.ActiveJobs())
}

func TestStop_CancelsJobsAfterDrainTimeout(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.Create(ctx, newTestJob("stuck.mp3")))

	gate := make(chan struct{}) // never closed; job only ends via cancel
	runner := &completingRunner{storage: s, gate: gate}
	d := New(s, runner,
		WithPollInterval(10*time.Millisecond),
		WithDrainTimeout(50*time.Millisecond))
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		return d.ActiveJobs() == 1
	}, 5*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not force-cancel the stuck job")
	}
}

func TestCancel_AbortsRunningJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := newTestJob("cancellable.mp3")
	require.NoError(t, s.Create(ctx, job))

	gate := make(chan struct{}) // never closed
	runner := &completingRunner{storage: s, gate: gate}
	d := New(s, runner, WithPollInterval(10*time.Millisecond))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.ActiveJobs() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, d.Cancel(job.ID))
	require.Eventually(t, func() bool {
		return d.ActiveJobs() == 0
	}, 5*time.Second, 10*time.Millisecond, "cancelled job must release its slot")

	assert.False(t, d.Cancel(job.ID), "cancelling a finished job reports false")
}

// ──────────────────────────────────────────────────────────────────────────────
// Retention
// ──────────────────────────────────────────────────────────────────────────────

func TestRetention_SweepsExpiredTerminalJobsAndArtifacts(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	artifactDir := t.TempDir()
	original := filepath.Join(artifactDir, "old.mp3")
	output := filepath.Join(artifactDir, "old.wav")
	require.NoError(t, os.WriteFile(original, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(output, []byte("b"), 0o644))

	old := newTestJob("old.mp3")
	old.OriginalPath = original
	old.OutputPath = &output
	old.Status = core.StatusCompleted
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Create(ctx, old))

	fresh := newTestJob("fresh.mp3")
	fresh.Status = core.StatusCompleted
	require.NoError(t, s.Create(ctx, fresh))

	d := New(s, &completingRunner{storage: s},
		WithPollInterval(10*time.Millisecond),
		WithRetention(24*time.Hour, schedule.Every(20*time.Millisecond)))
	require.NoError(t, d.Start(ctx))
	defer d.Stop()

	require.Eventually(t, func() bool {
		job, err := s.GetJob(ctx, old.ID)
		return err == nil && job == nil
	}, 5*time.Second, 10*time.Millisecond, "expired job must be deleted")

	_, err := os.Stat(original)
	assert.True(t, os.IsNotExist(err), "original artifact must be removed")
	_, err = os.Stat(output)
	assert.True(t, os.IsNotExist(err), "output artifact must be removed")

	kept, err := s.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "recent jobs survive the sweep")
}
