// Package memory provides mutex-guarded implementations of the domain stores for
// local development and tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to pick "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type ledgerKey struct {
	userID string
	day    time.Time
}

// Store implements every domain store contract in memory.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	nextSampleID int64
	samples      map[string][]domain.LocationSample
	ledger       map[ledgerKey]domain.StepLedgerEntry
	profiles     map[string]domain.Profile
	students     map[string]struct{}
	alerts       map[string]domain.Alert
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		samples:  make(map[string][]domain.LocationSample),
		ledger:   make(map[ledgerKey]domain.StepLedgerEntry),
		profiles: make(map[string]domain.Profile),
		students: make(map[string]struct{}),
		alerts:   make(map[string]domain.Alert),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MostRecentSample implements domain.LocationStore.
func (s *Store) MostRecentSample(ctx context.Context, userID string) (*domain.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := s.samples[userID]
	if len(trail) == 0 {
		return nil, nil
	}
	last := trail[len(trail)-1]
	return &last, nil
}

// AppendSample implements domain.LocationStore.
func (s *Store) AppendSample(ctx context.Context, userID string, point geo.Point, capturedAt time.Time) (domain.LocationSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSampleID++
	sample := domain.LocationSample{
		ID:         s.nextSampleID,
		UserID:     userID,
		Latitude:   point.Lat,
		Longitude:  point.Lng,
		CapturedAt: capturedAt.UTC(),
	}
	s.samples[userID] = append(s.samples[userID], sample)
	return sample, nil
}

// Samples returns a copy of the user's trail, oldest first.
func (s *Store) Samples(userID string) []domain.LocationSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.samples[userID])
}

// IncrementToday implements domain.StepLedger.
func (s *Store) IncrementToday(ctx context.Context, userID string, delta int) (domain.StepLedgerEntry, error) {
	if delta < 0 {
		return domain.StepLedgerEntry{}, domain.ErrNegativeDelta
	}
	now := s.now().UTC()
	key := ledgerKey{userID: userID, day: domain.StartOfDay(now)}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.ledger[key]
	if !ok {
		entry = domain.StepLedgerEntry{UserID: userID, Date: key.day, Source: domain.LedgerSourceGPS}
	}
	entry.Steps += delta
	entry.UpdatedAt = now
	s.ledger[key] = entry
	return entry, nil
}

// GetToday implements domain.StepLedger.
func (s *Store) GetToday(ctx context.Context, userID string) (*domain.StepLedgerEntry, error) {
	key := ledgerKey{userID: userID, day: domain.StartOfDay(s.now())}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.ledger[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// PutProfile stores a profile; student profiles join the alert audience.
func (s *Store) PutProfile(profile domain.Profile, student bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = profile
	if student {
		s.students[profile.UserID] = struct{}{}
	} else {
		delete(s.students, profile.UserID)
	}
}

// RemoveStudent drops a user from the alert audience.
func (s *Store) RemoveStudent(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.students, userID)
}

// GetProfile implements domain.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

// ListStudentIDs implements domain.RecipientDirectory.
func (s *Store) ListStudentIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.students))
	for id := range s.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Create implements domain.AlertRepository.
func (s *Store) Create(ctx context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.ID]; exists {
		return errors.New("alert already exists")
	}
	alert.Recipients = slices.Clone(alert.Recipients)
	s.alerts[alert.ID] = alert
	return nil
}

// SetStatus implements domain.AlertRepository.
func (s *Store) SetStatus(ctx context.Context, id string, status domain.AlertStatus, updatedAt time.Time) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	alert.Status = status
	alert.UpdatedAt = updatedAt
	s.alerts[id] = alert
	return cloneAlert(alert), nil
}

// Get implements domain.AlertRepository.
func (s *Store) Get(ctx context.Context, id string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	return cloneAlert(alert), nil
}

// Delete implements domain.AlertRepository.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return false, nil
	}
	delete(s.alerts, id)
	return true, nil
}

// ListForRecipient implements domain.AlertRepository.
func (s *Store) ListForRecipient(ctx context.Context, recipientID string, cursor *domain.Cursor, limit int) ([]domain.Alert, *domain.Cursor, error) {
	s.mu.RLock()
	matches := make([]domain.Alert, 0)
	for _, alert := range s.alerts {
		if !slices.Contains(alert.Recipients, recipientID) {
			continue
		}
		if cursor != nil && !before(alert, *cursor) {
			continue
		}
		matches = append(matches, *cloneAlert(alert))
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if limit <= 0 || len(matches) <= limit {
		return matches, nil, nil
	}
	matches = matches[:limit]
	last := matches[len(matches)-1]
	return matches, &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}

// before reports whether alert sorts after the cursor in newest-first order.
func before(alert domain.Alert, cursor domain.Cursor) bool {
	if alert.CreatedAt.Equal(cursor.CreatedAt) {
		return alert.ID < cursor.ID
	}
	return alert.CreatedAt.Before(cursor.CreatedAt)
}

func cloneAlert(a domain.Alert) *domain.Alert {
	a.Recipients = slices.Clone(a.Recipients)
	return &a
}
