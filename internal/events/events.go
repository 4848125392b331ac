// Package events is the append-only audit channel: every detection, freeze,
// resolution and registry change is emitted as a structured event. Emission
// is fire-and-forget; the gateway never fails a call because a sink is down.
package events

import (
	"context"
	"time"
)

// EventType identifies an audit event.
type EventType string

const (
	EventThreatDetected     EventType = "threat.detected"
	EventCallFrozen         EventType = "call.frozen"
	EventMitigationApplied  EventType = "mitigation.applied"
	EventTargetRegistered   EventType = "target.registered"
	EventTargetDeregistered EventType = "target.deregistered"
	EventAnalysisRequested  EventType = "analysis.requested"
	EventAnalysisCompleted  EventType = "analysis.completed"
	EventPolicyRejected     EventType = "policy.rejected"
)

// Event is a single audit-log entry.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Sink receives emitted events. Implementations must tolerate concurrent
// writers.
type Sink interface {
	Write(ctx context.Context, e *Event) error
}
