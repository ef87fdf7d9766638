package queue

import "github.com/prometheus/client_golang/prometheus"

var depthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "fittrack_client",
	Subsystem: "queue",
	Name:      "pending_workouts",
	Help:      "Workouts waiting to be replayed to the server.",
})

func init() {
	prometheus.MustRegister(depthGauge)
}

func setDepth(n int) {
	depthGauge.Set(float64(n))
}
