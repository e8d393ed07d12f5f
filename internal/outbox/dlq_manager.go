package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const maxBackoff = time.Hour

// DLQManager replays dead-lettered events through the outbox with exponential
// backoff and quarantines entries that exhaust their retries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     logrus.FieldLogger
}

// NewDLQManager constructs a DLQManager. Non-positive limits fall back to five
// retries starting one minute apart.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger logrus.FieldLogger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce handles up to batchSize due entries and returns how many went back to
// the outbox. Per-entry failures are joined; the rest of the batch still runs.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	var errs error
	for _, entry := range entries {
		outcome, handleErr := m.handle(ctx, entry)
		if handleErr != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, handleErr))
			continue
		}
		recordDLQOutcome(entry, outcome)
		if outcome == dlqOutcomeRequeued {
			requeued++
		}
	}

	refreshBacklog(ctx, m.pool)
	return requeued, errs
}

// due loads entries whose retry time has come, oldest first. They are collected
// before handling so each entry can take its own transaction on the pool.
func (m *DLQManager) due(ctx context.Context, batchSize int) ([]dlqEntry, error) {
	rows, err := m.pool.Query(ctx, `SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`, batchSize)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
}

func (m *DLQManager) handle(ctx context.Context, entry dlqEntry) (string, error) {
	log := m.logger.WithFields(logrus.Fields{
		"dlq_id":      entry.ID,
		"event_type":  entry.EventType,
		"aggregate":   entry.AggregateID,
		"retry_count": entry.RetryCount,
	})

	if entry.RetryCount >= m.maxRetries {
		if err := m.quarantine(ctx, entry, "retry limit reached"); err != nil {
			return "", err
		}
		log.Warn("dlq entry quarantined")
		return dlqOutcomeQuarantined, nil
	}

	var requeueErr error
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		// The savepoint keeps the retry bookkeeping alive when the requeue insert fails.
		requeueErr = pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
			return requeue(ctx, sp, entry)
		})
		if requeueErr != nil {
			return m.deferRetry(ctx, tx, entry, requeueErr)
		}
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if err != nil {
		return "", err
	}

	if requeueErr != nil {
		log.WithError(requeueErr).WithField("next_retry_in", m.backoffDelay(entry.RetryCount+1).String()).Warn("dlq requeue failed")
		return dlqOutcomeDeferred, nil
	}
	log.Info("dlq entry requeued")
	return dlqOutcomeRequeued, nil
}

func (m *DLQManager) quarantine(ctx context.Context, entry dlqEntry, reason string) error {
	_, err := m.pool.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, reason, entry.ID)
	return err
}

func (m *DLQManager) deferRetry(ctx context.Context, tx pgx.Tx, entry dlqEntry, cause error) error {
	_, err := tx.Exec(ctx, `UPDATE outbox_dlq
           SET retry_count = retry_count + 1,
               last_attempt_at = NOW(),
               next_retry_at = NOW() + $1::interval,
               reason = $2
         WHERE dlq_id = $3`,
		m.backoffDelay(entry.RetryCount+1), cause.Error(), entry.ID)
	return err
}

// backoffDelay doubles baseDelay per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxBackoff
	}
	return min(time.Duration(1<<uint(attempt-1))*m.baseDelay, maxBackoff)
}

// requeue puts the event back into the outbox as a fresh row.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for event %d", entry.EventID)
	}
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload)
	return err
}

// dlqEntry mirrors the selected outbox_dlq columns in order.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}
