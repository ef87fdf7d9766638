// Package observability holds the API's Prometheus collectors.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	workoutPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack_api",
		Subsystem: "persistence",
		Name:      "last_workout_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout written to the store.",
	})
	workoutsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_api",
		Subsystem: "workouts",
		Name:      "created_total",
		Help:      "Workouts accepted by the API, split by whether the idempotency key replayed an earlier write.",
	}, []string{"replay"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_api",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route pattern, method and status code.",
	}, []string{"route", "method", "status"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fittrack_api",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	pushDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_api",
		Subsystem: "push",
		Name:      "deliveries_total",
		Help:      "Web push deliveries attempted, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(workoutPersistGauge, workoutsCreated, httpRequests, httpDuration, pushDeliveries)
}

// RecordWorkoutPersisted updates the persistence watermark gauge.
func RecordWorkoutPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	workoutPersistGauge.Set(float64(ts.Unix()))
}

// RecordWorkoutCreated counts an accepted workout.
func RecordWorkoutCreated(replay bool) {
	workoutsCreated.WithLabelValues(strconv.FormatBool(replay)).Inc()
}

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordPushDelivery counts a push attempt; outcome is "sent", "gone" or "failed".
func RecordPushDelivery(outcome string) {
	pushDeliveries.WithLabelValues(outcome).Inc()
}
