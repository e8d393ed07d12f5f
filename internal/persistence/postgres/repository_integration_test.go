//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/testsupport"
)

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	const reports = 50
	var wg sync.WaitGroup
	errs := make(chan error, reports)
	for i := 0; i < reports; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementToday(ctx, "u1", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entry, err := repo.GetToday(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, reports, entry.Steps)
	require.Equal(t, domain.LedgerSourceGPS, entry.Source)

	_, err = repo.IncrementToday(ctx, "u1", -1)
	require.ErrorIs(t, err, domain.ErrNegativeDelta)
}

func TestLedgerRowsAreKeyedByUTCDay(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	now := time.Date(2026, time.March, 3, 23, 59, 0, 0, time.UTC)
	repo := NewRepository(pool, WithClock(func() time.Time { return now }))

	_, err := repo.IncrementToday(ctx, "u1", 10)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	entry, err := repo.GetToday(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, entry, "a new UTC day starts without a row")

	next, err := repo.IncrementToday(ctx, "u1", 5)
	require.NoError(t, err)
	require.Equal(t, 5, next.Steps)
	require.Equal(t, time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), next.Date.UTC())
}

func TestLocationSamplesReturnMostRecent(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	prev, err := repo.MostRecentSample(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, prev)

	base := time.Now().UTC().Truncate(time.Millisecond)
	_, err = repo.AppendSample(ctx, "u1", geo.Point{Lat: 1, Lng: 1}, base)
	require.NoError(t, err)
	second, err := repo.AppendSample(ctx, "u1", geo.Point{Lat: 2, Lng: 2}, base.Add(time.Second))
	require.NoError(t, err)

	latest, err := repo.MostRecentSample(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, 2.0, latest.Latitude)
}

func TestAlertLifecycleWritesOutbox(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	require.NoError(t, repo.SaveProfile(ctx, domain.Profile{UserID: "s1", Phone: "+15550100", DailyStepGoal: 8000}, RoleStudent))
	require.NoError(t, repo.SaveProfile(ctx, domain.Profile{UserID: "s2"}, RoleStudent))
	require.NoError(t, repo.SaveProfile(ctx, domain.Profile{UserID: "p1"}, RoleProvider))

	students, err := repo.ListStudentIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, students)

	profile, err := repo.GetProfile(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 8000, profile.DailyStepGoal)
	require.Equal(t, "+15550100", profile.Phone)

	now := time.Now().UTC().Truncate(time.Millisecond)
	alert := domain.Alert{
		ID:          uuid.NewString(),
		Title:       "Flu clinic",
		Message:     "Walk-in vaccinations",
		Priority:    domain.AlertPriorityMedium,
		CreatedByID: "p1",
		StartTime:   now,
		EndTime:     now.Add(time.Hour),
		Status:      domain.AlertStatusDraft,
		Recipients:  students,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, alert))

	published, err := repo.SetStatus(ctx, alert.ID, domain.AlertStatusActive, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, domain.AlertStatusActive, published.Status)
	require.Equal(t, []string{"s1", "s2"}, published.Recipients)

	inbox, next, err := repo.ListForRecipient(ctx, "s2", nil, 10)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, inbox, 1)

	inbox, next, err = repo.ListForRecipient(ctx, "s2", nil, 1)
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, inbox, 1)

	inbox, _, err = repo.ListForRecipient(ctx, "p1", nil, 10)
	require.NoError(t, err)
	require.Empty(t, inbox)

	missing, err := repo.SetStatus(ctx, uuid.NewString(), domain.AlertStatusActive, now)
	require.NoError(t, err)
	require.Nil(t, missing)
	missing, err = repo.SetStatus(ctx, "not-a-uuid", domain.AlertStatusActive, now)
	require.NoError(t, err)
	require.Nil(t, missing)

	deleted, err := repo.Delete(ctx, alert.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = repo.Delete(ctx, alert.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	var recipients int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM alert_recipients WHERE alert_id = $1`, alert.ID).Scan(&recipients))
	require.Zero(t, recipients)

	rows, err := pool.Query(ctx, `SELECT event_type FROM outbox WHERE aggregate_id = $1 ORDER BY event_id`, alert.ID)
	require.NoError(t, err)
	var types []string
	for rows.Next() {
		var et string
		require.NoError(t, rows.Scan(&et))
		types = append(types, et)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{events.TypeAlertCreated, events.TypeAlertPublished, events.TypeAlertDeleted}, types)
}

func TestRecordGoalReachedWritesOutbox(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	repo := NewRepository(pool)

	day := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordGoalReached(ctx, "u1", day, 10200, 10000))

	var payload map[string]any
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload FROM outbox WHERE event_type = $1`, events.TypeGoalReached).Scan(&payload))
	require.Equal(t, "2026-03-03", payload["day"])
	require.EqualValues(t, 10200, payload["totalSteps"])
}
