package gateway

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)
	return m.Counter.GetValue()
}

func TestSubmitMetrics_ForwardedOutcome(t *testing.T) {
	gwSubmissions.Reset()
	f := newFixture(t)
	caller, target := addr(1), addr(2)
	mustRegister(t, f, target, 3)

	if _, err := f.svc.Submit(context.Background(), cleanAttempt(caller, target)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if got := counterValue(t, gwSubmissions, "forwarded"); got != 1.0 {
		t.Errorf("expected forwarded counter 1, got %f", got)
	}
}

func TestSubmitMetrics_FrozenOutcomeAndThreatLabels(t *testing.T) {
	gwSubmissions.Reset()
	gwThreats.Reset()
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

	if _, err := f.svc.Submit(ctx, withdrawAttempt(caller, target, 1500)); err == nil {
		t.Fatal("expected freeze error")
	}

	if got := counterValue(t, gwSubmissions, "frozen"); got != 1.0 {
		t.Errorf("expected frozen counter 1, got %f", got)
	}
	if got := counterValue(t, gwThreats, "HIGH", "LARGE_WITHDRAWAL"); got != 1.0 {
		t.Errorf("expected threat counter 1, got %f", got)
	}
}

func TestSubmitMetrics_RegisteredNames(t *testing.T) {
	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}

	// Vectors only appear after first observation, so check the ones the
	// tests above have touched plus the plain counter and histogram.
	for _, name := range []string{
		"cordon_gateway_submissions_total",
		"cordon_gateway_threats_total",
	} {
		if !found[name] {
			t.Errorf("expected gathered metrics to contain %s", name)
		}
	}
}
