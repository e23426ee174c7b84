// Package dispatch polls the job table, claims pending jobs, and runs each
// one on its own goroutine under a concurrency bound. The table is the only
// queue: claims are atomic status transitions, and a startup sweep returns
// crashed jobs to pending, so no work is lost across restarts.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/opennarrator/narrator/pkg/core"
	"github.com/opennarrator/narrator/pkg/schedule"
)

// Runner executes one claimed job end to end. *pipeline.Executor is the
// production implementation.
type Runner interface {
	Run(ctx context.Context, job *core.ClaimedJob) error
}

// Dispatcher owns the scheduling loop. Create with New, then Start; Stop
// drains in-flight jobs before returning.
type Dispatcher struct {
	storage     core.Storage
	runner      Runner
	broadcaster core.Broadcaster
	log         *slog.Logger

	pollInterval  time.Duration
	maxConcurrent int
	drainTimeout  time.Duration

	// Retention sweep; disabled unless both are set.
	retentionAge      time.Duration
	retentionSchedule schedule.Schedule

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	running map[string]context.CancelFunc

	wg     sync.WaitGroup // in-flight jobs
	loopWG sync.WaitGroup // scheduling and retention loops
}

// New creates a dispatcher. The zero options give two concurrent jobs and a
// 500ms poll, matching a single-host deployment with heavyweight engines.
func New(storage core.Storage, runner Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		storage:       storage,
		runner:        runner,
		broadcaster:   nopBroadcaster{},
		log:           slog.Default(),
		pollInterval:  500 * time.Millisecond,
		maxConcurrent: 2,
		drainTimeout:  30 * time.Second,
		running:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(core.ProgressUpdate) {}

// Start recovers stranded jobs and launches the scheduling loop. Calling
// Start on a running dispatcher is an error.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already started")
	}
	d.started = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.mu.Unlock()

	// Crash recovery: anything mid-pipeline when the previous process died
	// goes back to pending and will be picked up again from scratch.
	reset, err := d.storage.ResetIncomplete(ctx)
	if err != nil {
		cancel()
		d.mu.Lock()
		d.started = false
		d.mu.Unlock()
		return fmt.Errorf("reset incomplete jobs: %w", err)
	}
	if reset > 0 {
		d.log.Info("reset stranded jobs to pending", "count", reset)
	}

	d.loopWG.Add(1)
	go d.schedulingLoop(loopCtx)

	if d.retentionAge > 0 && d.retentionSchedule != nil {
		d.loopWG.Add(1)
		go d.retentionLoop(loopCtx)
	}

	d.log.Info("dispatcher started",
		"max_concurrent", d.maxConcurrent,
		"poll_interval", d.pollInterval,
		"retention", d.retentionAge)
	return nil
}

// Stop halts claiming and waits for in-flight jobs to finish. Jobs still
// running when the drain timeout expires are cancelled; the startup sweep
// returns them to pending on the next Start.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.drainTimeout):
		d.log.Warn("drain timeout expired, cancelling running jobs")
		d.mu.Lock()
		for id, cancelJob := range d.running {
			d.log.Info("cancelling job", "job_id", id)
			cancelJob()
		}
		d.mu.Unlock()
		<-done
	}
	d.log.Info("dispatcher stopped")
}

// Cancel aborts a running job by ID. Returns false when the job is not
// currently running.
func (d *Dispatcher) Cancel(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancelJob, ok := d.running[jobID]
	if ok {
		cancelJob()
	}
	return ok
}

// ActiveJobs reports how many jobs are currently executing.
func (d *Dispatcher) ActiveJobs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

func (d *Dispatcher) schedulingLoop(ctx context.Context) {
	defer d.loopWG.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.fillSlots(ctx)
		}
	}
}

// fillSlots claims pending jobs until the concurrency bound is reached or
// the queue is empty. A lost claim race surfaces as an empty claim and is
// simply retried next cycle.
func (d *Dispatcher) fillSlots(ctx context.Context) {
	for d.ActiveJobs() < d.maxConcurrent {
		job, err := d.storage.ClaimNextPending(ctx)
		if err != nil {
			d.log.Error("failed to claim job", "error", err)
			return
		}
		if job == nil {
			return
		}
		d.launch(ctx, job)
	}
}

func (d *Dispatcher) launch(ctx context.Context, job *core.ClaimedJob) {
	jobCtx, cancelJob := context.WithCancel(context.WithoutCancel(ctx))

	d.mu.Lock()
	d.running[job.ID] = cancelJob
	d.mu.Unlock()

	d.broadcaster.Broadcast(core.ProgressUpdate{
		JobID:     job.ID,
		Status:    core.StatusDispatching,
		Progress:  0,
		Message:   "Assigning worker...",
		Timestamp: time.Now(),
	})
	d.log.Info("dispatching job", "job_id", job.ID, "file", job.FilePath)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancelJob()
		defer func() {
			d.mu.Lock()
			delete(d.running, job.ID)
			d.mu.Unlock()
		}()
		defer func() {
			// Backstop; the runner records its own panics when it can.
			if rec := recover(); rec != nil {
				d.log.Error("job runner panicked", "job_id", job.ID, "panic", rec)
			}
		}()

		if err := d.runner.Run(jobCtx, job); err != nil {
			d.log.Error("job failed", "job_id", job.ID, "error", err)
			return
		}
		d.log.Info("job finished", "job_id", job.ID)
	}()
}

// retentionLoop deletes terminal jobs older than the retention age on the
// configured schedule and removes their files.
func (d *Dispatcher) retentionLoop(ctx context.Context) {
	defer d.loopWG.Done()

	for {
		next := d.retentionSchedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.sweepExpired(ctx)
		}
	}
}

func (d *Dispatcher) sweepExpired(ctx context.Context) {
	cutoff := time.Now().Add(-d.retentionAge)
	deleted, err := d.storage.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		d.log.Error("retention sweep failed", "error", err)
		return
	}
	if len(deleted) == 0 {
		return
	}

	for _, job := range deleted {
		removeArtifact(d.log, job.ID, job.OriginalPath)
		if job.OutputPath != nil {
			removeArtifact(d.log, job.ID, *job.OutputPath)
		}
	}
	d.log.Info("retention sweep removed expired jobs", "count", len(deleted), "cutoff", cutoff)
}

func removeArtifact(log *slog.Logger, jobID, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove job artifact", "job_id", jobID, "path", path, "error", err)
	}
}
