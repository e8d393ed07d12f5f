package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
)

func TestDeliverFramesPayloadAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(nil, producer, registry, 0, 10)

	route, ok := RouteFor(events.TypeAlertCreated)
	require.True(t, ok)
	payload := json.RawMessage(`{"id":"a-1"}`)

	failed := dispatcher.deliver(context.Background(), []Message{{
		EventID:       1,
		AggregateType: "alert",
		AggregateID:   "a-1",
		EventType:     events.TypeAlertCreated,
		Topic:         route.Topic,
		SchemaSubject: route.SchemaSubject,
		PartitionKey:  "a-1",
		Payload:       payload,
	}})
	require.Empty(t, failed)

	require.Len(t, producer.writes, 1)
	require.Equal(t, TopicAlertEvents, producer.writes[0].topic)
	record := producer.writes[0].messages[0]
	require.Equal(t, []byte("a-1"), record.Key)
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(record.Value[1:5]))
	require.JSONEq(t, string(payload), string(record.Value[5:]))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeAlertCreated, headers[HeaderEventType])
	require.Equal(t, route.SchemaSubject, headers[HeaderSchemaSubject])
	require.Equal(t, "a-1", headers[HeaderAggregateID])
}

func TestDeliverGroupsByTopicAndCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 7}
	dispatcher := NewDispatcher(nil, producer, registry, 0, 10)

	alerts, _ := RouteFor(events.TypeAlertPublished)
	goals, _ := RouteFor(events.TypeGoalReached)
	messages := []Message{
		{EventID: 1, EventType: events.TypeAlertPublished, Topic: alerts.Topic, SchemaSubject: alerts.SchemaSubject, Payload: json.RawMessage(`{}`)},
		{EventID: 2, EventType: events.TypeGoalReached, Topic: goals.Topic, SchemaSubject: goals.SchemaSubject, Payload: json.RawMessage(`{}`)},
		{EventID: 3, EventType: events.TypeAlertPublished, Topic: alerts.Topic, SchemaSubject: alerts.SchemaSubject, Payload: json.RawMessage(`{}`)},
	}

	require.Empty(t, dispatcher.deliver(context.Background(), messages))
	require.Empty(t, dispatcher.deliver(context.Background(), messages[:1]))

	require.Len(t, producer.writes, 3)
	require.Equal(t, TopicAlertEvents, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, TopicGoalEvents, producer.writes[1].topic)
	require.Len(t, registry.calls, 2, "one registration per subject")
}

func TestDeliverDeadLettersUnknownEventTypeOnly(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 1}
	dispatcher := NewDispatcher(nil, producer, registry, 0, 10)

	goals, _ := RouteFor(events.TypeGoalReached)
	failed := dispatcher.deliver(context.Background(), []Message{
		{EventID: 1, EventType: "alert.unknown", Topic: TopicAlertEvents},
		{EventID: 2, EventType: events.TypeGoalReached, Topic: goals.Topic, SchemaSubject: goals.SchemaSubject, Payload: json.RawMessage(`{}`)},
	})

	require.Len(t, failed, 1)
	require.Equal(t, int64(1), failed[0].EventID)
	require.Contains(t, failed[0].Reason, "no schema metadata for event_type=alert.unknown")
	require.Len(t, producer.writes, 1)
	require.Equal(t, TopicGoalEvents, producer.writes[0].topic)
}

func TestDeliverDeadLettersOnRegistryFailure(t *testing.T) {
	registry := &stubRegistry{err: errors.New("registry down")}
	producer := &stubProducer{}
	dispatcher := NewDispatcher(nil, producer, registry, 0, 10)

	route, _ := RouteFor(events.TypeAlertDeleted)
	failed := dispatcher.deliver(context.Background(), []Message{{EventID: 1, EventType: events.TypeAlertDeleted, Topic: route.Topic, SchemaSubject: route.SchemaSubject}})
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].Reason, "registry down")
	require.Empty(t, producer.writes)

	// Failed lookups are not cached.
	registry.err = nil
	require.Empty(t, dispatcher.deliver(context.Background(), []Message{{EventID: 2, EventType: events.TypeAlertDeleted, Topic: route.Topic, SchemaSubject: route.SchemaSubject}}))
	require.Len(t, registry.calls, 2)
}

func TestDeliverIsolatesBrokerFailureToTopic(t *testing.T) {
	producer := &stubProducer{failTopics: map[string]error{TopicAlertEvents: errors.New("leader not available")}}
	dispatcher := NewDispatcher(nil, producer, &stubRegistry{id: 3}, 0, 10)

	alerts, _ := RouteFor(events.TypeAlertCreated)
	goals, _ := RouteFor(events.TypeGoalReached)
	failed := dispatcher.deliver(context.Background(), []Message{
		{EventID: 1, EventType: events.TypeAlertCreated, Topic: alerts.Topic, SchemaSubject: alerts.SchemaSubject, Payload: json.RawMessage(`{}`)},
		{EventID: 2, EventType: events.TypeGoalReached, Topic: goals.Topic, SchemaSubject: goals.SchemaSubject, Payload: json.RawMessage(`{}`)},
		{EventID: 3, EventType: events.TypeAlertCreated, Topic: alerts.Topic, SchemaSubject: alerts.SchemaSubject, Payload: json.RawMessage(`{}`)},
	})

	require.Len(t, failed, 2)
	for _, f := range failed {
		require.Equal(t, TopicAlertEvents, f.Topic)
		require.Contains(t, f.Reason, "leader not available (topic="+TopicAlertEvents+")")
	}
	require.Len(t, producer.writes, 1)
	require.Equal(t, TopicGoalEvents, producer.writes[0].topic)
}

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{}`))
	require.Equal(t, []byte{0, 0, 0, 1, 2, '{', '}'}, frame)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	m := NewDLQManager(nil, 5, time.Minute, nil)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

type stubProducer struct {
	mu         sync.Mutex
	err        error
	failTopics map[string]error
	writes     []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if err := s.failTopics[topic]; err != nil {
		return err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}
