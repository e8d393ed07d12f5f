package consumer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/outbox"
)

// wireHeaderLen is the magic byte plus the big-endian schema id.
const wireHeaderLen = 5

// ErrMalformedRecord marks records that can never be handled and are skipped.
var ErrMalformedRecord = errors.New("malformed record")

// Record is one outbox event read back from Kafka.
type Record struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AggregateID   string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Decode unmarshals the JSON payload into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.EventType, err)
	}
	return nil
}

func (r Record) position() string {
	return fmt.Sprintf("%s/%d@%d", r.Topic, r.Partition, r.Offset)
}

// parseRecord unwraps the Confluent framing written by the outbox dispatcher.
func parseRecord(msg kafka.Message) (Record, error) {
	if len(msg.Value) < wireHeaderLen {
		return Record{}, fmt.Errorf("%w: %d byte value", ErrMalformedRecord, len(msg.Value))
	}
	if magic := msg.Value[0]; magic != 0 {
		return Record{}, fmt.Errorf("%w: magic byte %d", ErrMalformedRecord, magic)
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers[outbox.HeaderEventType]
	if eventType == "" {
		return Record{}, fmt.Errorf("%w: no %s header", ErrMalformedRecord, outbox.HeaderEventType)
	}

	body := msg.Value[wireHeaderLen:]
	if !json.Valid(body) {
		return Record{}, fmt.Errorf("%w: payload is not json", ErrMalformedRecord)
	}

	return Record{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     eventType,
		AggregateID:   headers[outbox.HeaderAggregateID],
		SchemaSubject: headers[outbox.HeaderSchemaSubject],
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:wireHeaderLen])),
		Payload:       json.RawMessage(append([]byte(nil), body...)),
	}, nil
}
