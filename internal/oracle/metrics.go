package oracle

import "github.com/prometheus/client_golang/prometheus"

var (
	orRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "oracle",
		Name:      "analysis_requests_total",
		Help:      "Total analysis requests emitted to the analyst channel.",
	})

	orVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "oracle",
		Name:      "verdicts_total",
		Help:      "Total analyst verdicts by suggested action.",
	}, []string{"action"})

	orDispatchDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "oracle",
		Name:      "dispatch_dropped_total",
		Help:      "Analysis notifications dropped due to a full dispatch channel.",
	})
)

func init() {
	prometheus.MustRegister(
		orRequests,
		orVerdicts,
		orDispatchDropped,
	)
}
