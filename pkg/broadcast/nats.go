package broadcast

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opennarrator/narrator/pkg/core"
)

// DefaultSubjectPrefix is prepended to the job ID to form the publish subject,
// e.g. "narrator.progress.<job-id>".
const DefaultSubjectPrefix = "narrator.progress"

// NATS publishes progress updates as JSON onto a per-job NATS subject so
// external consumers (web UIs, CLIs) can follow a job live. Publish failures
// are logged and swallowed; progress delivery is never load-bearing.
type NATS struct {
	nc     *nats.Conn
	owned  bool
	prefix string
	log    *slog.Logger
}

// NATSOption configures a NATS broadcaster.
type NATSOption func(*NATS)

// WithSubjectPrefix overrides the subject prefix.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(n *NATS) { n.prefix = prefix }
}

// WithNATSLogger sets the logger.
func WithNATSLogger(log *slog.Logger) NATSOption {
	return func(n *NATS) { n.log = log }
}

// ConnectNATS dials the NATS server and returns a broadcaster over it.
func ConnectNATS(url string, opts ...NATSOption) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	n := NewNATS(nc, opts...)
	n.owned = true
	return n, nil
}

// NewNATS wraps an existing connection. The caller keeps ownership of conns
// passed in this way; Close only drains connections made by ConnectNATS.
func NewNATS(nc *nats.Conn, opts ...NATSOption) *NATS {
	n := &NATS{
		nc:     nc,
		prefix: DefaultSubjectPrefix,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Broadcast publishes the update to "<prefix>.<job-id>".
func (n *NATS) Broadcast(update core.ProgressUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		n.log.Error("failed to encode progress update", "job_id", update.JobID, "error", err)
		return
	}
	subject := n.prefix + "." + update.JobID
	if err := n.nc.Publish(subject, payload); err != nil {
		n.log.Warn("failed to publish progress update", "subject", subject, "error", err)
	}
}

// Close drains the connection when this broadcaster dialed it. Connections
// passed to NewNATS are left open for their owner to close.
func (n *NATS) Close() {
	if n.owned && n.nc != nil {
		_ = n.nc.Drain()
	}
}
