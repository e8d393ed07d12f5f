package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultHandled   = "handled"
	resultMalformed = "malformed"
	resultFailed    = "failed"
)

var (
	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_health_consumer_records_total",
		Help: "Kafka records consumed, by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_health_consumer_handle_seconds",
		Help:    "Time spent handling one record including retries.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"topic"})

	recordAge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "campus_health_consumer_record_age_seconds",
		Help: "Age of the most recently committed record when it was handled.",
	}, []string{"topic"})

	alertLifecycleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_health_alert_lifecycle_events_total",
		Help: "Alert lifecycle events seen downstream, by event type and priority.",
	}, []string{"event_type", "priority"})

	alertAudience = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_health_alert_recipients",
		Help:    "Recipient count of published alerts.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	goalsReachedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campus_health_goals_reached_total",
		Help: "Step goal reached events seen downstream.",
	})

	goalOvershoot = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campus_health_goal_overshoot_ratio",
		Help:    "Daily total divided by the goal at the moment a goal event fired.",
		Buckets: []float64{1, 1.05, 1.1, 1.25, 1.5, 2, 3},
	})
)

func init() {
	prometheus.MustRegister(recordsTotal, handleDuration, recordAge, alertLifecycleTotal, alertAudience, goalsReachedTotal, goalOvershoot)
}

func observeRecord(rec Record, result string) {
	recordsTotal.WithLabelValues(rec.Topic, rec.EventType, result).Inc()
}

func observeCommitted(rec Record, started, now time.Time) {
	observeRecord(rec, resultHandled)
	handleDuration.WithLabelValues(rec.Topic).Observe(now.Sub(started).Seconds())
	if !rec.Timestamp.IsZero() {
		recordAge.WithLabelValues(rec.Topic).Set(now.Sub(rec.Timestamp).Seconds())
	}
}
