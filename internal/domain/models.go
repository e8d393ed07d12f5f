package domain

import (
	"time"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
)

// LocationSample is a single GPS fix reported by a user. Samples are append-only.
type LocationSample struct {
	ID         int64
	UserID     string
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// Point returns the sample position for distance calculations.
func (s LocationSample) Point() geo.Point {
	return geo.Point{Lat: s.Latitude, Lng: s.Longitude}
}

// StepLedgerEntry is the per-user, per-UTC-day step total.
type StepLedgerEntry struct {
	UserID    string
	Date      time.Time
	Steps     int
	Source    string
	UpdatedAt time.Time
}

// LedgerSourceGPS marks ledger rows derived from location reports.
const LedgerSourceGPS = "gps"

// Profile holds the subset of a user profile the tracker needs.
type Profile struct {
	UserID        string
	Phone         string
	DailyStepGoal int
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusDraft   AlertStatus = "DRAFT"
	AlertStatusActive  AlertStatus = "ACTIVE"
	AlertStatusExpired AlertStatus = "EXPIRED"
)

// AlertPriority ranks alerts for display.
type AlertPriority string

const (
	AlertPriorityLow    AlertPriority = "LOW"
	AlertPriorityMedium AlertPriority = "MEDIUM"
	AlertPriorityHigh   AlertPriority = "HIGH"
)

// Valid reports whether p is a known priority.
func (p AlertPriority) Valid() bool {
	switch p {
	case AlertPriorityLow, AlertPriorityMedium, AlertPriorityHigh:
		return true
	}
	return false
}

// Alert is an administrator or provider authored broadcast. Recipients is the
// set captured when the alert was created and never changes afterwards.
type Alert struct {
	ID          string
	Title       string
	Message     string
	Priority    AlertPriority
	CreatedByID string
	StartTime   time.Time
	EndTime     time.Time
	Status      AlertStatus
	Recipients  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveStatus derives expiry lazily from EndTime.
func (a Alert) EffectiveStatus(now time.Time) AlertStatus {
	if !a.EndTime.IsZero() && !now.Before(a.EndTime) {
		return AlertStatusExpired
	}
	return a.Status
}

// Cursor models the pagination token for alert listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
