package consumer

import (
	"context"
	"fmt"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
)

// StatsHandler turns alert and goal events into campus-wide counters.
type StatsHandler struct{}

// Register routes the event types StatsHandler understands.
func (s StatsHandler) Register(r *Router) *Router {
	return r.On(s, events.TypeAlertCreated, events.TypeAlertPublished, events.TypeAlertDeleted, events.TypeGoalReached)
}

// Handle updates the counters for rec. Payloads that do not decode are
// reported as malformed so the processor skips them.
func (StatsHandler) Handle(_ context.Context, rec Record) error {
	switch rec.EventType {
	case events.TypeAlertCreated, events.TypeAlertPublished:
		var alert events.AlertLifecycle
		if err := rec.Decode(&alert); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
		alertLifecycleTotal.WithLabelValues(rec.EventType, alert.Priority).Inc()
		if rec.EventType == events.TypeAlertPublished {
			alertAudience.Observe(float64(alert.RecipientCount))
		}
	case events.TypeAlertDeleted:
		alertLifecycleTotal.WithLabelValues(rec.EventType, "").Inc()
	case events.TypeGoalReached:
		var goal events.GoalReached
		if err := rec.Decode(&goal); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
		}
		goalsReachedTotal.Inc()
		if goal.Goal > 0 {
			goalOvershoot.Observe(float64(goal.TotalSteps) / float64(goal.Goal))
		}
	}
	return nil
}
