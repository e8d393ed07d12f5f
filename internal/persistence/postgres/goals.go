package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
)

// RecordGoalReached implements domain.GoalEventRecorder by writing a
// steps.goal_reached outbox event.
func (r *Repository) RecordGoalReached(ctx context.Context, userID string, day time.Time, total, goal int) error {
	now := r.now().UTC()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return r.insertOutbox(ctx, tx, outboxRecord{
			aggregateType: "user",
			aggregateID:   userID,
			eventType:     events.TypeGoalReached,
			partitionKey:  userID,
			occurredAt:    now,
			payload: events.GoalReached{
				UserID:     userID,
				Day:        day.Format(time.DateOnly),
				TotalSteps: total,
				Goal:       goal,
				OccurredAt: now,
			},
		})
	})
}
