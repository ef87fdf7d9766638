package replay

import "github.com/prometheus/client_golang/prometheus"

var (
	entriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_client",
		Subsystem: "replay",
		Name:      "entries_total",
		Help:      "Queued workouts replayed, by outcome.",
	}, []string{"outcome"})

	passesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_client",
		Subsystem: "replay",
		Name:      "passes_total",
		Help:      "Replay passes by trigger.",
	}, []string{"trigger"})

	coalescedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_client",
		Subsystem: "replay",
		Name:      "coalesced_total",
		Help:      "Replay requests dropped because a pass was already running.",
	}, []string{"trigger"})

	passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fittrack_client",
		Subsystem: "replay",
		Name:      "pass_duration_seconds",
		Help:      "Duration of replay passes that had work to do.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(entriesTotal, passesTotal, coalescedTotal, passDuration)
}

func recordPass(trigger Trigger, report Report) {
	passesTotal.WithLabelValues(string(trigger)).Inc()
	entriesTotal.WithLabelValues(string(StatusSuccess)).Add(float64(report.Synced()))
	entriesTotal.WithLabelValues(string(StatusFailure)).Add(float64(report.Failed()))
	passDuration.Observe(report.Duration.Seconds())
}

func recordCoalesced(trigger Trigger) {
	coalescedTotal.WithLabelValues(string(trigger)).Inc()
}
