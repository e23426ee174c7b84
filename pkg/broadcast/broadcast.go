// Package broadcast fans job progress updates out to observers: in-process
// channel subscribers and an optional NATS publisher for external UIs.
// Delivery is best-effort everywhere; a slow or absent observer never blocks
// the pipeline.
package broadcast

import "github.com/opennarrator/narrator/pkg/core"

// Nop discards every update. Useful default when no observer is wired.
type Nop struct{}

func (Nop) Broadcast(core.ProgressUpdate) {}

// Multi forwards each update to every wrapped broadcaster in order.
type Multi []core.Broadcaster

func (m Multi) Broadcast(update core.ProgressUpdate) {
	for _, b := range m {
		b.Broadcast(update)
	}
}
