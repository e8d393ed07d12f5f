package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/observability"
)

// DefaultDailyStepGoal applies to users without a configured goal.
const DefaultDailyStepGoal = 10000

// defaultSendTimeout bounds the SMS call made inline with a location report.
const defaultSendTimeout = 5 * time.Second

// GoalOption configures optional GoalNotifier behaviour.
type GoalOption func(*GoalNotifier)

// WithDefaultGoal overrides DefaultDailyStepGoal.
func WithDefaultGoal(goal int) GoalOption {
	return func(n *GoalNotifier) {
		if goal > 0 {
			n.defaultGoal = goal
		}
	}
}

// WithGoalEvents records a goal-reached event alongside the SMS.
func WithGoalEvents(recorder GoalEventRecorder) GoalOption {
	return func(n *GoalNotifier) {
		n.events = recorder
	}
}

// WithSendTimeout bounds how long Check waits on the SMS sender.
func WithSendTimeout(d time.Duration) GoalOption {
	return func(n *GoalNotifier) {
		if d > 0 {
			n.sendTimeout = d
		}
	}
}

// WithGoalClock overrides the clock used to date goal events.
func WithGoalClock(now func() time.Time) GoalOption {
	return func(n *GoalNotifier) {
		n.now = now
	}
}

// GoalNotifier texts users whose ledger total is at or above their daily goal.
// Every call that finds the goal met sends again; there is no per-day dedup.
type GoalNotifier struct {
	profiles    ProfileStore
	sms         SMSSender
	events      GoalEventRecorder
	defaultGoal int
	sendTimeout time.Duration
	logger      logrus.FieldLogger
	now         func() time.Time
}

// NewGoalNotifier constructs a GoalNotifier.
func NewGoalNotifier(profiles ProfileStore, sms SMSSender, logger logrus.FieldLogger, opts ...GoalOption) *GoalNotifier {
	n := &GoalNotifier{
		profiles:    profiles,
		sms:         sms,
		defaultGoal: DefaultDailyStepGoal,
		sendTimeout: defaultSendTimeout,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Check sends the congratulation message when total meets the goal and reports
// whether one was sent. Failures are logged and never returned.
func (n *GoalNotifier) Check(ctx context.Context, userID string, total int) bool {
	sent, err := n.check(ctx, userID, total)
	if err != nil {
		observability.RecordGoalNotification(false)
		n.logger.WithFields(logrus.Fields{"user_id": userID, "total_steps": total}).WithError(err).Warn("goal notification failed")
		return false
	}
	if sent {
		observability.RecordGoalNotification(true)
	}
	return sent
}

func (n *GoalNotifier) check(ctx context.Context, userID string, total int) (bool, error) {
	profile, err := n.profiles.GetProfile(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: load profile: %w", ErrGoalNotify, err)
	}

	goal := n.defaultGoal
	if profile != nil && profile.DailyStepGoal > 0 {
		goal = profile.DailyStepGoal
	}
	if total < goal {
		return false, nil
	}

	if n.events != nil {
		if err := n.events.RecordGoalReached(ctx, userID, StartOfDay(n.now()), total, goal); err != nil {
			n.logger.WithField("user_id", userID).WithError(err).Warn("goal event not recorded")
		}
	}

	if profile == nil || profile.Phone == "" {
		return false, fmt.Errorf("%w: no phone number on file", ErrGoalNotify)
	}

	message := fmt.Sprintf("Congratulations! You reached your daily goal of %d steps. Today's total: %d.", goal, total)
	sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()
	if _, err := n.sms.SendSMS(sendCtx, profile.Phone, message); err != nil {
		return false, fmt.Errorf("%w: send sms: %w", ErrGoalNotify, err)
	}
	return true, nil
}
