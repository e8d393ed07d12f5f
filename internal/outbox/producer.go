package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes outbox records through one synchronous writer shared
// by every topic. Records are hashed on their key so events for one alert or
// one user keep their order within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for the given brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// WriteMessages stamps each record with topic and writes them in one call.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	routed := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		msg.Topic = topic
		routed[i] = msg
	}
	return p.writer.WriteMessages(ctx, routed...)
}

// Close flushes pending writes and releases broker connections.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
