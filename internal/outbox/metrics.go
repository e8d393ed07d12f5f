package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Settlement outcomes for claimed outbox rows.
const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"
)

// Outcomes for a DLQ pass over one entry.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeDeferred    = "deferred"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Claimed outbox events by event type and whether they reached Kafka or the DLQ.",
	}, []string{"event_type", "outcome"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campus_health",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming a non-empty batch to settling it.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campus_health",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the retry loop, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklog = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campus_health",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Rows currently in the DLQ, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(eventsTotal, batchDuration, dlqEntriesTotal, dlqBacklog)
}

func recordSettled(msg Message, outcome string) {
	eventsTotal.WithLabelValues(msg.EventType, outcome).Inc()
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqEntriesTotal.WithLabelValues(entry.EventType, outcome).Inc()
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var pending, quarantined int
	err := pool.QueryRow(ctx, `SELECT
            COUNT(*) FILTER (WHERE quarantined_at IS NULL),
            COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
        FROM outbox_dlq`).Scan(&pending, &quarantined)
	if err != nil {
		return
	}
	dlqBacklog.WithLabelValues("pending").Set(float64(pending))
	dlqBacklog.WithLabelValues("quarantined").Set(float64(quarantined))
}
