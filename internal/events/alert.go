// Package events defines event payloads shared by the outbox, the consumer and live channels.
package events

import "time"

// Event types written to the outbox.
const (
	TypeAlertCreated   = "alert.created"
	TypeAlertPublished = "alert.published"
	TypeAlertDeleted   = "alert.deleted"
	TypeGoalReached    = "steps.goal_reached"
)

// Alert is the full alert record pushed to live channels and to Kafka.
type Alert struct {
	AlertID     string    `json:"id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Priority    string    `json:"priority"`
	CreatedByID string    `json:"createdById"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AlertLifecycle wraps an alert for the outbox with its recipient count.
type AlertLifecycle struct {
	Alert
	RecipientCount int       `json:"recipientCount"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// AlertDeleted is emitted when an alert is removed.
type AlertDeleted struct {
	AlertID   string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}
