package domain_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
)

var errBoom = errors.New("connection refused")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingLedger struct {
	domain.StepLedger
	incrementErr error
}

func (l failingLedger) IncrementToday(ctx context.Context, userID string, delta int) (domain.StepLedgerEntry, error) {
	if l.incrementErr != nil {
		return domain.StepLedgerEntry{}, l.incrementErr
	}
	return l.StepLedger.IncrementToday(ctx, userID, delta)
}

type failingLocations struct {
	domain.LocationStore
	appendErr error
}

func (l failingLocations) AppendSample(ctx context.Context, userID string, p geo.Point, at time.Time) (domain.LocationSample, error) {
	if l.appendErr != nil {
		return domain.LocationSample{}, l.appendErr
	}
	return l.LocationStore.AppendSample(ctx, userID, p, at)
}

type sentSMS struct {
	phone   string
	message string
}

type stubSMS struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (s *stubSMS) SendSMS(ctx context.Context, phone, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, sentSMS{phone: phone, message: message})
	return "msg-1", nil
}

func (s *stubSMS) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type goalEvent struct {
	userID      string
	day         time.Time
	total, goal int
}

type stubGoalEvents struct {
	events []goalEvent
}

func (s *stubGoalEvents) RecordGoalReached(ctx context.Context, userID string, day time.Time, total, goal int) error {
	s.events = append(s.events, goalEvent{userID: userID, day: day, total: total, goal: goal})
	return nil
}

// liveChannel is a realtime.Channel that records what it receives.
type liveChannel struct {
	id   string
	mu   sync.Mutex
	got  []realtime.Message
	done chan struct{}
	once sync.Once
}

func newLiveChannel(id string) *liveChannel {
	return &liveChannel{id: id, done: make(chan struct{})}
}

func (c *liveChannel) ID() string { return c.id }

func (c *liveChannel) Send(msg realtime.Message) error {
	select {
	case <-c.done:
		return realtime.ErrChannelClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, msg)
	return nil
}

func (c *liveChannel) Done() <-chan struct{} { return c.done }

func (c *liveChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *liveChannel) received() []realtime.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Message(nil), c.got...)
}

// countingFanout wraps a registry and records every recipient it was asked to reach.
type countingFanout struct {
	inner *realtime.Registry
	mu    sync.Mutex
	calls map[string]int
}

func newCountingFanout(inner *realtime.Registry) *countingFanout {
	return &countingFanout{inner: inner, calls: make(map[string]int)}
}

func (f *countingFanout) Broadcast(recipientIDs []string, msg realtime.Message) int {
	f.mu.Lock()
	for _, recipientID := range recipientIDs {
		f.calls[recipientID]++
	}
	f.mu.Unlock()
	return f.inner.Broadcast(recipientIDs, msg)
}

func (f *countingFanout) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *countingFanout) recipients() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		out[k] = v
	}
	return out
}

type failingAlertRepo struct {
	domain.AlertRepository
	createErr error
}

func (r failingAlertRepo) Create(ctx context.Context, alert domain.Alert) error {
	return r.createErr
}
