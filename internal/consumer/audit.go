package consumer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertAuditEntry = `INSERT INTO alert_event_log (topic, partition, "offset", event_type, aggregate_id, schema_id, payload, received_at)
VALUES (@topic, @partition, @offset, @event_type, @aggregate_id, @schema_id, @payload, @received_at)
ON CONFLICT (topic, partition, "offset") DO NOTHING`

// AuditHandler appends every consumed event to alert_event_log. The Kafka
// position is the primary key, so a redelivered record is written once.
type AuditHandler struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewAuditHandler returns an AuditHandler writing through pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool, now: time.Now}
}

// Handle writes rec. Records without a broker timestamp are stamped with the
// local clock.
func (h *AuditHandler) Handle(ctx context.Context, rec Record) error {
	receivedAt := rec.Timestamp
	if receivedAt.IsZero() {
		receivedAt = h.now()
	}
	_, err := h.pool.Exec(ctx, insertAuditEntry, pgx.NamedArgs{
		"topic":        rec.Topic,
		"partition":    rec.Partition,
		"offset":       rec.Offset,
		"event_type":   rec.EventType,
		"aggregate_id": rec.AggregateID,
		"schema_id":    rec.SchemaID,
		"payload":      rec.Payload,
		"received_at":  receivedAt.UTC(),
	})
	return err
}
