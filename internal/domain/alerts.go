package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/observability"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
)

// CreateAlertInput captures the payload from the API layer.
type CreateAlertInput struct {
	Title       string
	Message     string
	Priority    AlertPriority
	Duration    time.Duration
	CreatedByID string
}

// AlertServiceOption configures optional AlertService behaviour.
type AlertServiceOption func(*AlertService)

// WithAlertClock overrides the clock used for start, end and expiry.
func WithAlertClock(now func() time.Time) AlertServiceOption {
	return func(s *AlertService) {
		s.now = now
	}
}

// AlertService persists alerts and pushes them to recipients' live channels.
// Delivery is best effort: recipients without a live channel miss the push.
type AlertService struct {
	repo      AlertRepository
	directory RecipientDirectory
	fanout    Fanout
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewAlertService constructs an AlertService. fanout may be nil to disable pushes.
func NewAlertService(repo AlertRepository, directory RecipientDirectory, fanout Fanout, logger logrus.FieldLogger, opts ...AlertServiceOption) *AlertService {
	s := &AlertService{
		repo:      repo,
		directory: directory,
		fanout:    fanout,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create freezes the current student roster as the recipient set, stores the
// alert and broadcasts it. Nothing is pushed if persistence fails.
func (s *AlertService) Create(ctx context.Context, in CreateAlertInput) (*Alert, error) {
	if in.Priority == "" {
		in.Priority = AlertPriorityMedium
	}
	if err := validateAlertInput(in); err != nil {
		return nil, err
	}

	recipients, err := s.directory.ListStudentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve recipients: %w", ErrStoreUnavailable, err)
	}

	// Stored timestamps keep microseconds, the finest step Postgres and list cursors hold.
	now := s.now().UTC().Truncate(time.Microsecond)
	alert := Alert{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Message:     strings.TrimSpace(in.Message),
		Priority:    in.Priority,
		CreatedByID: in.CreatedByID,
		StartTime:   now,
		EndTime:     now.Add(in.Duration),
		Status:      AlertStatusDraft,
		Recipients:  uniqueSorted(recipients),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("%w: create alert: %w", ErrStoreUnavailable, err)
	}

	s.broadcast(realtime.EventNewAlert, alert)
	return &alert, nil
}

// Publish marks the alert ACTIVE and re-sends it to the recipient set frozen at
// creation. Publishing an ACTIVE alert again re-sends the update.
func (s *AlertService) Publish(ctx context.Context, id string) (*Alert, error) {
	alert, err := s.repo.SetStatus(ctx, id, AlertStatusActive, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: publish alert: %w", ErrStoreUnavailable, err)
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}

	s.broadcast(realtime.EventAlertUpdate, *alert)
	return alert, nil
}

// Delete removes the alert and its recipient rows. No event is pushed.
func (s *AlertService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete alert: %w", ErrStoreUnavailable, err)
	}
	if !deleted {
		return ErrAlertNotFound
	}
	return nil
}

// Get fetches an alert by ID.
func (s *AlertService) Get(ctx context.Context, id string) (*Alert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get alert: %w", ErrStoreUnavailable, err)
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// ListForRecipient returns alerts addressed to recipientID, newest first.
func (s *AlertService) ListForRecipient(ctx context.Context, recipientID string, cursor *Cursor, limit int) ([]Alert, *Cursor, error) {
	alerts, next, err := s.repo.ListForRecipient(ctx, recipientID, cursor, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list alerts: %w", ErrStoreUnavailable, err)
	}
	return alerts, next, nil
}

// Now exposes the service clock so callers derive expiry consistently.
func (s *AlertService) Now() time.Time {
	return s.now().UTC()
}

func (s *AlertService) broadcast(event string, alert Alert) int {
	if s.fanout == nil {
		return 0
	}
	start := time.Now()

	data, err := json.Marshal(AlertEvent(alert, s.now()))
	if err != nil {
		s.logger.WithField("alert_id", alert.ID).WithError(err).Error("encode alert payload")
		return 0
	}
	msg := realtime.Message{Event: event, Data: data}

	attempted := s.fanout.Broadcast(alert.Recipients, msg)

	observability.RecordBroadcast(event, attempted, time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"event":      event,
		"recipients": len(alert.Recipients),
		"channels":   attempted,
	}).Info("alert broadcast")
	return attempted
}

// AlertEvent converts an alert into its wire payload with the status derived at now.
func AlertEvent(a Alert, now time.Time) events.Alert {
	return events.Alert{
		AlertID:     a.ID,
		Title:       a.Title,
		Message:     a.Message,
		Priority:    string(a.Priority),
		CreatedByID: a.CreatedByID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Status:      string(a.EffectiveStatus(now)),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func validateAlertInput(in CreateAlertInput) error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidAlert)
	case strings.TrimSpace(in.Message) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidAlert)
	case !in.Priority.Valid():
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidAlert, in.Priority)
	case in.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidAlert)
	case strings.TrimSpace(in.CreatedByID) == "":
		return fmt.Errorf("%w: creator is required", ErrInvalidAlert)
	}
	return nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
