package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultRelayTopic is the Redis pub/sub channel shared by all API instances.
const DefaultRelayTopic = "campus-health:realtime"

type relayEnvelope struct {
	Origin       string   `json:"origin"`
	RecipientIDs []string `json:"recipient_ids"`
	Message      Message  `json:"message"`
}

// RelayOption configures a RedisRelay.
type RelayOption func(*RedisRelay)

// WithRelayQueue sets how many broadcasts may wait for publication. Broadcasts
// beyond that are dropped.
func WithRelayQueue(size int) RelayOption {
	return func(r *RedisRelay) {
		if size > 0 {
			r.queue = make(chan relayEnvelope, size)
		}
	}
}

// WithPublishTimeout bounds each Redis publish.
func WithPublishTimeout(d time.Duration) RelayOption {
	return func(r *RedisRelay) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

// RedisRelay fans messages out across API instances. Local channels are served
// directly; one envelope per broadcast is queued and published on Redis by
// Run so peers can reach channels they hold. Redis pub/sub keeps nothing, so
// a peer that is down misses it.
type RedisRelay struct {
	client         *redis.Client
	topic          string
	origin         string
	local          *Registry
	queue          chan relayEnvelope
	publishTimeout time.Duration
	publish        func(ctx context.Context, payload []byte) error
	logger         logrus.FieldLogger
}

// NewRedisRelay wraps the local registry with a Redis pub/sub bridge.
func NewRedisRelay(client *redis.Client, topic string, local *Registry, logger logrus.FieldLogger, opts ...RelayOption) *RedisRelay {
	if topic == "" {
		topic = DefaultRelayTopic
	}
	r := &RedisRelay{
		client:         client,
		topic:          topic,
		origin:         uuid.NewString(),
		local:          local,
		queue:          make(chan relayEnvelope, 256),
		publishTimeout: 2 * time.Second,
		logger:         logger,
	}
	r.publish = func(ctx context.Context, payload []byte) error {
		return r.client.Publish(ctx, r.topic, payload).Err()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Broadcast delivers to local channels and queues one envelope for peers. It
// never waits on Redis: when the queue is full the envelope is dropped and
// counted. The return value counts local channels only.
func (r *RedisRelay) Broadcast(recipientIDs []string, msg Message) int {
	attempted := r.local.Broadcast(recipientIDs, msg)
	if len(recipientIDs) == 0 {
		return attempted
	}

	env := relayEnvelope{Origin: r.origin, RecipientIDs: append([]string(nil), recipientIDs...), Message: msg}
	select {
	case r.queue <- env:
	default:
		recordRelay("dropped")
		r.logger.WithFields(logrus.Fields{
			"event":      msg.Event,
			"recipients": len(recipientIDs),
		}).Warn("relay queue full, peers will miss broadcast")
	}
	return attempted
}

// Run publishes queued broadcasts and delivers peer messages locally until
// ctx ends or the subscription fails.
func (r *RedisRelay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.drain(ctx)

	sub := r.client.Subscribe(ctx, r.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			r.deliver([]byte(m.Payload))
		}
	}
}

// drain publishes queued envelopes one at a time, each bounded by publishTimeout.
func (r *RedisRelay) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.queue:
			r.send(ctx, env)
		}
	}
}

func (r *RedisRelay) send(ctx context.Context, env relayEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		r.logger.WithError(err).Error("relay encode failed")
		recordRelay("dropped")
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	if err := r.publish(publishCtx, payload); err != nil {
		r.logger.WithError(err).WithField("event", env.Message.Event).Warn("relay publish failed")
		recordRelay("dropped")
		return
	}
	recordRelay("published")
}

// deliver hands a peer's envelope to the local registry. Envelopes this
// instance published itself were already delivered by Broadcast.
func (r *RedisRelay) deliver(payload []byte) int {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.WithError(err).Warn("relay decode failed")
		recordRelay("dropped")
		return 0
	}
	if env.Origin == r.origin || len(env.RecipientIDs) == 0 {
		return 0
	}
	recordRelay("received")
	return r.local.Broadcast(env.RecipientIDs, env.Message)
}
