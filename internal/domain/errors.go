package domain

import "errors"

var (
	// ErrInvalidLocation indicates malformed coordinates in a location report.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrStoreUnavailable wraps persistence failures. Retrying a location report
	// after this error may count the same movement twice.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNoProgress is returned when a user has no ledger row for today.
	ErrNoProgress = errors.New("no progress recorded today")
	// ErrNegativeDelta is returned when a ledger increment is below zero.
	ErrNegativeDelta = errors.New("step delta must be non-negative")
	// ErrGoalNotify marks a failed goal notification. It is logged, never returned to callers.
	ErrGoalNotify = errors.New("goal notification failed")
	// ErrAlertNotFound is returned when an alert cannot be located.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrInvalidAlert indicates an alert request failed validation.
	ErrInvalidAlert = errors.New("invalid alert")
)
