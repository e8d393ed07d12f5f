// Package domain holds the tracker and alert workflows and the contracts they
// need from storage and transport.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/observability"
)

// NoiseFloorMeters is the smallest displacement treated as real movement.
const NoiseFloorMeters = 5.0

// TrackInput is one location report.
type TrackInput struct {
	UserID string
	Lat    float64
	Lng    float64
}

// TrackResult reports the steps derived from a report and the day's running total.
type TrackResult struct {
	StepsAdded int
	TotalSteps int
}

// TrackerOption configures optional Tracker behaviour.
type TrackerOption func(*Tracker)

// WithTrackerClock overrides the clock used to stamp samples.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithGoalNotifier runs the goal check after every ledger increment.
func WithGoalNotifier(n *GoalNotifier) TrackerOption {
	return func(t *Tracker) {
		t.goals = n
	}
}

// Tracker turns location reports into ledger increments.
//
// The previous sample is read without any per-user lock, so two reports for
// the same user arriving out of order may be measured against a stale sample.
// Replaying a legitimate report counts its distance again.
type Tracker struct {
	locations LocationStore
	ledger    StepLedger
	goals     *GoalNotifier
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(locations LocationStore, ledger StepLedger, logger logrus.FieldLogger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		locations: locations,
		ledger:    ledger,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records the sample and adds the distance walked since the previous one.
func (t *Tracker) Track(ctx context.Context, in TrackInput) (TrackResult, error) {
	point := geo.Point{Lat: in.Lat, Lng: in.Lng}
	if err := geo.Validate(point); err != nil {
		observability.RecordLocationReport("invalid")
		return TrackResult{}, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	previous, err := t.locations.MostRecentSample(ctx, in.UserID)
	if err != nil {
		return TrackResult{}, t.storeFailure("load previous sample", in.UserID, err)
	}

	// The trail is recorded whether or not the report yields steps.
	if _, err := t.locations.AppendSample(ctx, in.UserID, point, t.now().UTC()); err != nil {
		return TrackResult{}, t.storeFailure("append sample", in.UserID, err)
	}

	if previous == nil {
		total, err := t.todayTotal(ctx, in.UserID)
		if err != nil {
			return TrackResult{}, err
		}
		observability.RecordLocationReport("first_sample")
		return TrackResult{StepsAdded: 0, TotalSteps: total}, nil
	}

	distance := geo.DistanceMeters(previous.Point(), point)
	if distance < NoiseFloorMeters {
		total, err := t.todayTotal(ctx, in.UserID)
		if err != nil {
			return TrackResult{}, err
		}
		observability.RecordLocationReport("noise")
		return TrackResult{StepsAdded: 0, TotalSteps: total}, nil
	}

	steps := geo.StepsFromDistance(distance)
	entry, err := t.ledger.IncrementToday(ctx, in.UserID, steps)
	if err != nil {
		return TrackResult{}, t.storeFailure("increment ledger", in.UserID, err)
	}
	observability.RecordLocationReport("counted")
	observability.RecordStepsAdded(steps, entry.UpdatedAt)

	t.logger.WithFields(logrus.Fields{
		"user_id":     in.UserID,
		"distance_m":  distance,
		"steps_added": steps,
		"total_steps": entry.Steps,
	}).Debug("ledger incremented")

	if t.goals != nil {
		t.goals.Check(ctx, in.UserID, entry.Steps)
	}

	return TrackResult{StepsAdded: steps, TotalSteps: entry.Steps}, nil
}

// Progress returns today's ledger row or ErrNoProgress.
func (t *Tracker) Progress(ctx context.Context, userID string) (*StepLedgerEntry, error) {
	entry, err := t.ledger.GetToday(ctx, userID)
	if err != nil {
		return nil, t.storeFailure("read ledger", userID, err)
	}
	if entry == nil {
		return nil, ErrNoProgress
	}
	return entry, nil
}

func (t *Tracker) todayTotal(ctx context.Context, userID string) (int, error) {
	entry, err := t.ledger.GetToday(ctx, userID)
	if err != nil {
		return 0, t.storeFailure("read ledger", userID, err)
	}
	if entry == nil {
		return 0, nil
	}
	return entry.Steps, nil
}

func (t *Tracker) storeFailure(op, userID string, err error) error {
	observability.RecordLocationReport("error")
	t.logger.WithFields(logrus.Fields{"user_id": userID, "op": op}).WithError(err).Error("tracker store failure")
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
