// Package consumer reads outbox events back from Kafka and feeds them to
// downstream handlers.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Reader is the part of *kafka.Reader the processor drives.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithRetry sets how often a failing record is handed to the handler and the
// pause before the first retry. The pause doubles after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// Processor fetches records, hands them to a Handler and commits them.
type Processor struct {
	reader   Reader
	handler  Handler
	logger   logrus.FieldLogger
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

// NewProcessor returns a Processor reading from reader.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		logger:   logrus.StandardLogger().WithField("component", "consumer"),
		attempts: 5,
		backoff:  200 * time.Millisecond,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until ctx ends or a record keeps failing after every retry.
// In the second case the record stays uncommitted and Run returns its error,
// so the group rebalances and the record is read again on restart.
func (p *Processor) Run(ctx context.Context) error {
	for {
		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.WithError(err).Warn("fetch failed")
			continue
		}

		if err := p.process(ctx, msg); err != nil {
			return err
		}
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) error {
	started := p.now()
	rec, err := parseRecord(msg)
	if err == nil {
		err = p.handleWithRetry(ctx, rec)
	} else {
		rec = Record{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset}
	}

	log := p.logger.WithFields(logrus.Fields{"position": rec.position(), "event_type": rec.EventType})
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedRecord):
		log.WithError(err).Warn("skipping malformed record")
		observeRecord(rec, resultMalformed)
	default:
		observeRecord(rec, resultFailed)
		return fmt.Errorf("record %s: %w", rec.position(), err)
	}

	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		// The next successful commit covers this offset.
		log.WithError(err).Error("commit failed")
		return nil
	}
	if err == nil {
		observeCommitted(rec, started, p.now())
	}
	return nil
}

func (p *Processor) handleWithRetry(ctx context.Context, rec Record) error {
	delay := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.handler.Handle(ctx, rec)
		if err == nil || errors.Is(err, ErrMalformedRecord) || attempt == p.attempts {
			return err
		}
		p.logger.WithError(err).WithFields(logrus.Fields{
			"position": rec.position(),
			"attempt":  attempt,
		}).Warn("handler failed, retrying")

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
