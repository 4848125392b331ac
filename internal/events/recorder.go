package events

import (
	"context"
	"sync"
)

// Recorder is a bounded in-memory sink holding the most recent events for
// the query API. When the buffer is full the oldest events fall off.
type Recorder struct {
	mu   sync.RWMutex
	buf  []*Event
	next int
	full bool
}

// NewRecorder creates a recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Recorder{buf: make([]*Event, capacity)}
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Write(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first, optionally filtered by
// type. An empty eventType matches everything.
func (r *Recorder) Recent(eventType EventType, limit int) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}

	out := make([]*Event, 0, limit)
	for i := 1; i <= size && len(out) < limit; i++ {
		e := r.buf[(r.next-i+len(r.buf))%len(r.buf)]
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
	}
	return out
}
