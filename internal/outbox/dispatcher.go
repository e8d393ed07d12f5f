// Package outbox delivers alert and step-goal events recorded alongside their
// state changes to Kafka, and retries the ones that could not be delivered.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Kafka header keys set on every delivered record.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderAggregateID   = "aggregate_id"
)

const defaultClaimLease = time.Minute

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Option configures optional Dispatcher behaviour.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClaimLease sets how long a claimed row stays invisible to other
// dispatchers. Rows claimed by a crashed instance become eligible again after it.
func WithClaimLease(lease time.Duration) Option {
	return func(d *Dispatcher) {
		if lease > 0 {
			d.claimLease = lease
		}
	}
}

// Message represents a row claimed from the outbox.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// deadLetter is a claimed message that could not be delivered.
type deadLetter struct {
	Message
	Reason string
}

// Dispatcher drains the outbox table into Kafka. A failure affects only the
// messages it touches: an unknown event type or schema failure dead-letters that
// message, a broker failure dead-letters that topic's share of the batch.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	pollInterval     time.Duration
	batchSize        int
	claimLease       time.Duration
	schemaIDs        sync.Map
	logger           logrus.FieldLogger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		claimLease:       defaultClaimLease,
		logger:           logrus.StandardLogger().WithField("component", "outbox"),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the polling loop until ctx is cancelled. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.WithError(err).Error("outbox dispatcher error")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	messages, err := d.claim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	failed := d.deliver(ctx, messages)
	if len(failed) > 0 {
		d.logger.WithFields(logrus.Fields{
			"batch_size":    len(messages),
			"dead_lettered": len(failed),
		}).Warn("outbox events routed to dlq")
	}

	if err := d.settle(ctx, messages, failed); err != nil {
		return fmt.Errorf("settle outbox batch: %w", err)
	}

	dead := make(map[int64]struct{}, len(failed))
	for _, f := range failed {
		dead[f.EventID] = struct{}{}
		recordSettled(f.Message, outcomeDeadLettered)
	}
	for _, msg := range messages {
		if _, ok := dead[msg.EventID]; !ok {
			recordSettled(msg, outcomeDelivered)
		}
	}
	return nil
}

// claim leases up to batchSize unpublished rows in event order.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	var messages []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
            FROM outbox
            WHERE published_at IS NULL
              AND (claimed_at IS NULL OR claimed_at < NOW() - $2::interval)
            ORDER BY event_id
            LIMIT $1
            FOR UPDATE SKIP LOCKED`, d.batchSize, d.claimLease)
		if err != nil {
			return err
		}
		messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var msg Message
			err := row.Scan(&msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload)
			return msg, err
		})
		if err != nil || len(messages) == 0 {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// deliver publishes messages grouped by topic, preserving claim order within a
// topic, and returns the ones that did not reach Kafka.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) []deadLetter {
	var failed []deadLetter
	batches := make(map[string][]Message)
	records := make(map[string][]kafka.Message)
	var order []string

	for _, msg := range messages {
		record, err := d.frame(ctx, msg)
		if err != nil {
			failed = append(failed, deadLetter{Message: msg, Reason: err.Error()})
			continue
		}
		if _, seen := batches[msg.Topic]; !seen {
			order = append(order, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], msg)
		records[msg.Topic] = append(records[msg.Topic], record)
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, records[topic]...); err != nil {
			reason := fmt.Sprintf("%s (topic=%s)", err, topic)
			for _, msg := range batches[topic] {
				failed = append(failed, deadLetter{Message: msg, Reason: reason})
			}
		}
	}
	return failed
}

// frame resolves the schema ID for msg and builds its Kafka record.
func (d *Dispatcher) frame(ctx context.Context, msg Message) (kafka.Message, error) {
	entry, ok := schemaCatalog[msg.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}
	schemaID, err := d.schemaID(ctx, msg.SchemaSubject, entry.Schema)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("resolve schema %s: %w", msg.SchemaSubject, err)
	}
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: encodeWireFormat(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
			{Key: HeaderAggregateID, Value: []byte(msg.AggregateID)},
		},
	}, nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "::" + schema
	if id, ok := d.schemaIDs.Load(key); ok {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDs.Store(key, id)
	return id, nil
}

// settle marks the whole batch published and copies the failures into the DLQ
// in one transaction, so a row is never both pending and dead-lettered.
func (d *Dispatcher) settle(ctx context.Context, messages []Message, failed []deadLetter) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
		for _, f := range failed {
			batch.Queue(`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
                VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`,
				f.EventID, f.EventType, f.Topic, f.Payload, f.Reason, f.AggregateType, f.AggregateID, f.SchemaSubject, f.PartitionKey)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}

// encodeWireFormat applies Confluent framing: a zero magic byte, the big-endian
// schema ID, then the JSON payload.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
