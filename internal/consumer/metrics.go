package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultProcessed    = "processed"
	resultHandlerError = "handler_error"
	resultDecodeError  = "decode_error"
)

var (
	messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack_api",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Kafka records seen by the notifier, by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	lagHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fittrack_api",
		Subsystem: "consumer",
		Name:      "event_lag_seconds",
		Help:      "Time between a record being produced and being handled.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(messagesCounter, lagHistogram)
}

func recordResult(topic, eventType, result string) {
	messagesCounter.WithLabelValues(topic, eventType, result).Inc()
}

func recordLag(msg Message) {
	if msg.Timestamp.IsZero() {
		return
	}
	lagHistogram.WithLabelValues(msg.Topic).Observe(time.Since(msg.Timestamp).Seconds())
}
