package broadcast

import (
	"log/slog"
	"sync"

	"github.com/opennarrator/narrator/pkg/core"
)

// DefaultSubscriberBuffer is the channel depth handed to new subscribers.
// Progress updates are coalescable by nature, so a shallow buffer suffices.
const DefaultSubscriberBuffer = 16

// Hub delivers progress updates to in-process subscribers over channels.
// Sends are non-blocking: a subscriber that stops draining loses updates
// rather than stalling the pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan core.ProgressUpdate]struct{}
	log  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		subs: make(map[chan core.ProgressUpdate]struct{}),
		log:  log,
	}
}

// Subscribe registers a new observer and returns its channel together with an
// unsubscribe function. Unsubscribe closes the channel and is idempotent.
func (h *Hub) Subscribe() (<-chan core.ProgressUpdate, func()) {
	ch := make(chan core.ProgressUpdate, DefaultSubscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			// Close under the write lock so no Broadcast is mid-send.
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// Broadcast delivers the update to every current subscriber without blocking.
func (h *Hub) Broadcast(update core.ProgressUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- update:
		default:
			h.log.Debug("dropping progress update for slow subscriber",
				"job_id", update.JobID, "status", update.Status)
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
