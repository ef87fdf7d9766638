package gateway

import "github.com/prometheus/client_golang/prometheus"

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fittrack_client",
	Subsystem: "gateway",
	Name:      "requests_total",
	Help:      "Gateway calls by response source and result.",
}, []string{"source", "result"})

func init() {
	prometheus.MustRegister(requestsTotal)
}

func recordRequest(source Source, result string) {
	requestsTotal.WithLabelValues(string(source), result).Inc()
}
