package storage

import "github.com/prometheus/client_golang/prometheus"

var (
	storageFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack_client",
		Subsystem: "storage",
		Name:      "fallbacks_total",
		Help:      "Times the durable cache fell back to in-memory storage after a backend failure.",
	})
	storageBusy = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack_client",
		Subsystem: "storage",
		Name:      "busy_total",
		Help:      "Operations that failed because another process held the storage lock.",
	})
)

func init() {
	prometheus.MustRegister(storageFallbacks, storageBusy)
}

func recordFallback() {
	storageFallbacks.Inc()
}

func recordBusy() {
	storageBusy.Inc()
}
