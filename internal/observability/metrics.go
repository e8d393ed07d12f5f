// Package observability holds Prometheus collectors shared by the tracker and alert flows.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	locationReports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "tracker",
		Name:      "location_reports_total",
		Help:      "Location reports handled, labeled by outcome (first_sample, noise, counted, invalid, error).",
	}, []string{"outcome"})

	stepsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "tracker",
		Name:      "steps_added_total",
		Help:      "Steps added to the ledger from GPS-derived distance.",
	})

	lastLedgerUpdate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "campus_health",
		Subsystem: "tracker",
		Name:      "last_ledger_update_timestamp_seconds",
		Help:      "Unix timestamp of the most recent step ledger increment.",
	})

	goalNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "goals",
		Name:      "notifications_total",
		Help:      "Goal notifications attempted, labeled by result (sent, failed).",
	}, []string{"result"})

	alertBroadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "alerts",
		Name:      "broadcasts_total",
		Help:      "Alert broadcasts, labeled by event name.",
	}, []string{"event"})

	alertDeliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "alerts",
		Name:      "delivery_attempts_total",
		Help:      "Channels a broadcast was attempted on, labeled by event name.",
	}, []string{"event"})

	alertBroadcastDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus_health",
		Subsystem: "alerts",
		Name:      "broadcast_duration_seconds",
		Help:      "Time spent fanning an alert out to its recipient set.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(locationReports, stepsAdded, lastLedgerUpdate, goalNotifications,
		alertBroadcasts, alertDeliveryAttempts, alertBroadcastDuration)
}

// RecordLocationReport counts a handled location report.
func RecordLocationReport(outcome string) {
	locationReports.WithLabelValues(outcome).Inc()
}

// RecordStepsAdded counts steps written to the ledger and updates the watermark.
func RecordStepsAdded(steps int, ts time.Time) {
	if steps > 0 {
		stepsAdded.Add(float64(steps))
	}
	if !ts.IsZero() {
		lastLedgerUpdate.Set(float64(ts.Unix()))
	}
}

// RecordGoalNotification counts a goal notification attempt.
func RecordGoalNotification(sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	goalNotifications.WithLabelValues(result).Inc()
}

// RecordBroadcast counts one alert fan-out and the channels it reached.
func RecordBroadcast(event string, attempted int, elapsed time.Duration) {
	alertBroadcasts.WithLabelValues(event).Inc()
	alertDeliveryAttempts.WithLabelValues(event).Add(float64(attempted))
	alertBroadcastDuration.Observe(elapsed.Seconds())
}

// LocationReports exposes the report counter for tests.
func LocationReports(outcome string) prometheus.Counter {
	return locationReports.WithLabelValues(outcome)
}
