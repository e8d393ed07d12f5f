// Package postgres provides Postgres-backed persistence for location samples,
// the step ledger, profiles, alerts and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/outbox"
)

// Option configures optional Repository behaviour.
type Option func(*Repository)

// WithClock overrides the clock used to pick the ledger day and timestamp rows.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// Repository implements the domain stores on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type outboxRecord struct {
	aggregateType string
	aggregateID   string
	eventType     string
	partitionKey  string
	occurredAt    time.Time
	payload       any
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, rec outboxRecord) error {
	body, err := json.Marshal(rec.payload)
	if err != nil {
		return err
	}

	route, ok := outbox.RouteFor(rec.eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", rec.eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", rec.aggregateID, rec.eventType, rec.occurredAt.UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		rec.aggregateType,
		rec.aggregateID,
		rec.eventType,
		route.Topic,
		route.SchemaSubject,
		rec.partitionKey,
		body,
		dedupeKey,
	)
	return err
}
