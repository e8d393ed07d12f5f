package domain

import (
	"context"
	"time"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
)

// LocationStore persists raw location samples.
type LocationStore interface {
	// MostRecentSample returns nil when the user has never reported a location.
	MostRecentSample(ctx context.Context, userID string) (*LocationSample, error)
	AppendSample(ctx context.Context, userID string, point geo.Point, capturedAt time.Time) (LocationSample, error)
}

// StepLedger accumulates steps per user per UTC day.
type StepLedger interface {
	// IncrementToday must apply delta atomically; concurrent calls never lose updates.
	IncrementToday(ctx context.Context, userID string, delta int) (StepLedgerEntry, error)
	// GetToday returns nil when no row exists for today.
	GetToday(ctx context.Context, userID string) (*StepLedgerEntry, error)
}

// ProfileStore reads the profile fields used for goal notifications.
type ProfileStore interface {
	// GetProfile returns nil when the user has no profile.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// RecipientDirectory resolves alert audiences.
type RecipientDirectory interface {
	ListStudentIDs(ctx context.Context) ([]string, error)
}

// AlertRepository persists alerts with their frozen recipient sets.
type AlertRepository interface {
	// Create stores the alert and its recipients in one transaction.
	Create(ctx context.Context, alert Alert) error
	// SetStatus updates the status and returns the alert, or nil if it does not exist.
	SetStatus(ctx context.Context, id string, status AlertStatus, updatedAt time.Time) (*Alert, error)
	Get(ctx context.Context, id string) (*Alert, error)
	// Delete reports whether an alert was removed.
	Delete(ctx context.Context, id string) (bool, error)
	ListForRecipient(ctx context.Context, recipientID string, cursor *Cursor, limit int) ([]Alert, *Cursor, error)
}

// GoalEventRecorder records goal-reached events for downstream consumers.
type GoalEventRecorder interface {
	RecordGoalReached(ctx context.Context, userID string, day time.Time, total, goal int) error
}

// SMSSender delivers out-of-band text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

// Fanout pushes one real-time message to every live channel of the given
// recipients and reports how many channels were attempted. It must not block
// on a slow sink.
type Fanout interface {
	Broadcast(recipientIDs []string, msg realtime.Message) int
}
