package realtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cordonlabs/cordon/internal/events"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWantsAllEvents(t *testing.T) {
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &events.Event{Type: events.EventThreatDetected, Timestamp: time.Now()}
	if !client.wants(event) {
		t.Error("AllEvents client should receive every event")
	}
}

func TestWantsEventTypeFilter(t *testing.T) {
	client := &Client{sub: Subscription{
		EventTypes: []events.EventType{events.EventCallFrozen, events.EventMitigationApplied},
	}}

	if !client.wants(&events.Event{Type: events.EventCallFrozen}) {
		t.Error("should receive call.frozen events")
	}
	if !client.wants(&events.Event{Type: events.EventMitigationApplied}) {
		t.Error("should receive mitigation.applied events")
	}
	if client.wants(&events.Event{Type: events.EventTargetRegistered}) {
		t.Error("should NOT receive target.registered events")
	}
}

func TestWantsTargetFilter(t *testing.T) {
	client := &Client{sub: Subscription{
		Targets: []string{"0xaaaa"},
	}}

	matching := &events.Event{
		Type: events.EventThreatDetected,
		Data: map[string]any{"target": "0xaaaa", "caller": "0xbbbb"},
	}
	matchingCaller := &events.Event{
		Type: events.EventThreatDetected,
		Data: map[string]any{"target": "0xcccc", "caller": "0xaaaa"},
	}
	notMatching := &events.Event{
		Type: events.EventThreatDetected,
		Data: map[string]any{"target": "0xcccc", "caller": "0xdddd"},
	}

	if !client.wants(matching) {
		t.Error("should match on target address")
	}
	if !client.wants(matchingCaller) {
		t.Error("should match on caller address")
	}
	if client.wants(notMatching) {
		t.Error("should NOT match unrelated addresses")
	}
}

func TestWantsMinLevelFilter(t *testing.T) {
	client := &Client{sub: Subscription{MinLevel: "HIGH"}}

	high := &events.Event{
		Type: events.EventThreatDetected,
		Data: map[string]any{"level": "HIGH"},
	}
	critical := &events.Event{
		Type: events.EventThreatDetected,
		Data: map[string]any{"level": "CRITICAL"},
	}
	low := &events.Event{
		Type: events.EventThreatDetected,
		Data: map[string]any{"level": "LOW"},
	}
	noLevel := &events.Event{
		Type: events.EventTargetRegistered,
		Data: map[string]any{"target": "0xaaaa"},
	}

	if !client.wants(high) {
		t.Error("should receive HIGH events")
	}
	if !client.wants(critical) {
		t.Error("should receive CRITICAL events")
	}
	if client.wants(low) {
		t.Error("should NOT receive LOW events")
	}
	if !client.wants(noLevel) {
		t.Error("level filter should only apply to events carrying a level")
	}
}

func TestWantsEmptySubscription(t *testing.T) {
	client := &Client{sub: Subscription{}}

	if !client.wants(&events.Event{Type: events.EventThreatDetected}) {
		t.Error("empty subscription (no filters) should receive events")
	}
}

func TestHubBroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&events.Event{Type: events.EventThreatDetected, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("totalEvents = %v, want 1", stats["totalEvents"])
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)
	if got := h.Stats()["connectedClients"].(int); got != 1 {
		t.Errorf("connectedClients = %v, want 1", got)
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)
	if got := h.Stats()["connectedClients"].(int); got != 0 {
		t.Errorf("connectedClients = %v, want 0", got)
	}
}

func TestHubBroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&events.Event{
		Type:      events.EventCallFrozen,
		Timestamp: time.Now(),
		Data:      map[string]any{"threatId": "0xdead"},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for broadcast")
	}
}

func TestHubFilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []events.EventType{events.EventCallFrozen}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&events.Event{Type: events.EventTargetRegistered, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("client should NOT receive target.registered")
	default:
	}

	h.Broadcast(&events.Event{Type: events.EventCallFrozen, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("client should receive call.frozen")
	}
}

func TestHubContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("hub did not stop after context cancellation")
	}
}

func TestSinkFeedsHub(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	sink := NewSink(h)
	if err := sink.Write(ctx, &events.Event{Type: events.EventThreatDetected, Timestamp: time.Now()}); err != nil {
		t.Fatalf("sink write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := h.Stats()["totalEvents"].(int64); got != 1 {
		t.Errorf("totalEvents = %v, want 1", got)
	}
}
