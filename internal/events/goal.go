package events

import "time"

// GoalReached is emitted each time a ledger update leaves a user at or above their daily goal.
type GoalReached struct {
	UserID     string    `json:"userId"`
	Day        string    `json:"day"`
	TotalSteps int       `json:"totalSteps"`
	Goal       int       `json:"goal"`
	OccurredAt time.Time `json:"occurredAt"`
}
