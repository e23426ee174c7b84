package core

import "time"

// ProgressUpdate is broadcast after every job state transition. Delivery is
// fire-and-forget: emission order per job matches stage order, nothing more.
type ProgressUpdate struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster fans progress events out to interested observers. Broadcast
// must never block or fail the pipeline; implementations drop on backpressure.
type Broadcaster interface {
	Broadcast(update ProgressUpdate)
}
