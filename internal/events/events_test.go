package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type captureSink struct {
	mu     sync.Mutex
	events []*Event
	done   chan struct{}
}

func newCaptureSink(expect int) *captureSink {
	return &captureSink{done: make(chan struct{}, expect)}
}

func (s *captureSink) Write(_ context.Context, e *Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *captureSink) wait(t *testing.T, n int) []*Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func TestEmitterFansOut(t *testing.T) {
	sink := newCaptureSink(1)
	e := NewEmitter(slog.New(slog.NewTextHandler(io.Discard, nil)), sink)

	var id common.Hash
	id[31] = 7
	var target, caller common.Address
	target[19] = 1
	caller[19] = 2

	e.EmitThreatDetected(id, target, caller, "HIGH", "REENTRANCY", "contract caller invoking sensitive function")

	got := sink.wait(t, 1)
	if got[0].Type != EventThreatDetected {
		t.Fatalf("type = %s", got[0].Type)
	}
	if got[0].Data["threatId"] != id.Hex() {
		t.Errorf("threatId = %v", got[0].Data["threatId"])
	}
	if got[0].ID == "" {
		t.Error("event ID should be assigned")
	}
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	e.EmitTargetDeregistered(common.Address{}) // must not panic
}

func TestRecorderKeepsNewestFirst(t *testing.T) {
	r := NewRecorder(10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = r.Write(ctx, &Event{ID: fmt.Sprintf("evt_%d", i), Type: EventThreatDetected})
	}

	recent := r.Recent("", 3)
	if len(recent) != 3 {
		t.Fatalf("len = %d", len(recent))
	}
	if recent[0].ID != "evt_4" || recent[2].ID != "evt_2" {
		t.Fatalf("order wrong: %s, %s", recent[0].ID, recent[2].ID)
	}
}

func TestRecorderWrapsAround(t *testing.T) {
	r := NewRecorder(4)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = r.Write(ctx, &Event{ID: fmt.Sprintf("evt_%d", i)})
	}

	recent := r.Recent("", 10)
	if len(recent) != 4 {
		t.Fatalf("len = %d, want capacity 4", len(recent))
	}
	if recent[0].ID != "evt_9" || recent[3].ID != "evt_6" {
		t.Fatalf("wrap order wrong: %s .. %s", recent[0].ID, recent[3].ID)
	}
}

func TestRecorderFiltersByType(t *testing.T) {
	r := NewRecorder(10)
	ctx := context.Background()

	_ = r.Write(ctx, &Event{ID: "a", Type: EventThreatDetected})
	_ = r.Write(ctx, &Event{ID: "b", Type: EventCallFrozen})
	_ = r.Write(ctx, &Event{ID: "c", Type: EventThreatDetected})

	frozen := r.Recent(EventCallFrozen, 10)
	if len(frozen) != 1 || frozen[0].ID != "b" {
		t.Fatalf("filter result: %+v", frozen)
	}
}
