package gateway

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cordonlabs/cordon/internal/freeze"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSubmitSpanCarriesCallAttributes(t *testing.T) {
	recorder := withSpanRecorder(t)
	f := newFixture(t)
	ctx := context.Background()
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)

	if _, err := f.svc.Submit(ctx, cleanAttempt(caller, target)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	span := findSpan(recorder.Ended(), "gateway.Submit")
	if span == nil {
		t.Fatal("no gateway.Submit span recorded")
	}
	if v, ok := spanAttr(span, "call.target"); !ok || v.AsString() != target.Hex() {
		t.Errorf("call.target = %v (present %v)", v.AsString(), ok)
	}
	if v, ok := spanAttr(span, "call.caller"); !ok || v.AsString() != caller.Hex() {
		t.Errorf("call.caller = %v (present %v)", v.AsString(), ok)
	}
	if v, ok := spanAttr(span, "threat.level"); !ok || v.AsString() != "NONE" {
		t.Errorf("threat.level = %v (present %v)", v.AsString(), ok)
	}
}

func TestFrozenSubmitAndResolveSpans(t *testing.T) {
	recorder := withSpanRecorder(t)
	f := newFixture(t)
	ctx := context.Background()
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Submit(ctx, depositAttempt(caller, target, 100)); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
		f.clock.Advance(1)
	}
	_, err := f.svc.Submit(ctx, withdrawAttempt(caller, target, 1500))
	var frozen *FrozenError
	if !errors.As(err, &frozen) {
		t.Fatalf("err = %v, want FrozenError", err)
	}

	span := findSpan(recorder.Ended(), "gateway.Submit")
	if span == nil {
		t.Fatal("no gateway.Submit span recorded")
	}
	if v, ok := spanAttr(span, "threat.id"); !ok || v.AsString() != frozen.ThreatID.Hex() {
		t.Errorf("threat.id = %v (present %v)", v.AsString(), ok)
	}
	if v, ok := spanAttr(span, "threat.level"); !ok || v.AsString() != "HIGH" {
		t.Errorf("threat.level = %v (present %v)", v.AsString(), ok)
	}

	if _, err := f.svc.Resolve(ctx, frozen.ThreatID, caller, freeze.ActionRevert, false); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	resolved := findSpan(recorder.Ended(), "freeze.Resolve")
	if resolved == nil {
		t.Fatal("no freeze.Resolve span recorded")
	}
	if v, ok := spanAttr(resolved, "threat.id"); !ok || v.AsString() != frozen.ThreatID.Hex() {
		t.Errorf("resolve threat.id = %v (present %v)", v.AsString(), ok)
	}
}
