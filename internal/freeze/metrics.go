package freeze

import "github.com/prometheus/client_golang/prometheus"

var (
	fzActiveFrozen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cordon",
		Subsystem: "freeze",
		Name:      "active_frozen_calls",
		Help:      "Number of unresolved frozen calls.",
	})

	fzExpired = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cordon",
		Subsystem: "freeze",
		Name:      "expired_frozen_calls",
		Help:      "Number of unresolved frozen calls past their expiry unit.",
	})

	fzResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "freeze",
		Name:      "resolutions_total",
		Help:      "Total freeze resolutions by action and path.",
	}, []string{"action", "path"}) // path: "owner", "self"
)

func init() {
	prometheus.MustRegister(
		fzActiveFrozen,
		fzExpired,
		fzResolutions,
	)
}
