package realtime

import (
	"context"

	"github.com/cordonlabs/cordon/internal/events"
)

// Sink feeds audit events from the emitter into the hub, so every event
// written to the audit trail also reaches live subscribers.
type Sink struct {
	hub *Hub
}

// NewSink wraps a hub as an audit event sink.
func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

var _ events.Sink = (*Sink)(nil)

func (s *Sink) Write(_ context.Context, event *events.Event) error {
	s.hub.Broadcast(event)
	return nil
}
