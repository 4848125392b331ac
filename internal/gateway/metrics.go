package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	gwSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "gateway",
		Name:      "submissions_total",
		Help:      "Total call submissions by outcome.",
	}, []string{"outcome"}) // "forwarded", "monitored", "frozen", "rejected", "forward_failed"

	gwThreats = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "gateway",
		Name:      "threats_total",
		Help:      "Total threats detected by level and vulnerability type.",
	}, []string{"level", "vuln_type"})

	gwMitigations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "gateway",
		Name:      "mitigations_total",
		Help:      "Total frozen calls resolved by override or self-resolution.",
	})

	gwSubmitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cordon",
		Subsystem: "gateway",
		Name:      "submit_latency_seconds",
		Help:      "End-to-end submission latency in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		gwSubmissions,
		gwThreats,
		gwMitigations,
		gwSubmitLatency,
	)
}
