package domain_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/events"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/logging"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/persistence/memory"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/realtime"
)

type alertFixture struct {
	svc      *domain.AlertService
	store    *memory.Store
	registry *realtime.Registry
	fanout   *countingFanout
	clock    *clock
}

func newAlertFixture(t *testing.T, students ...string) *alertFixture {
	t.Helper()
	clk := newClock(time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC))
	store := memory.NewStore(memory.WithClock(clk.Now))
	for _, id := range students {
		store.PutProfile(domain.Profile{UserID: id}, true)
	}
	registry := realtime.NewRegistry(logging.Discard())
	t.Cleanup(registry.Close)
	fanout := newCountingFanout(registry)
	svc := domain.NewAlertService(store, store, fanout, logging.Discard(), domain.WithAlertClock(clk.Now))
	return &alertFixture{svc: svc, store: store, registry: registry, fanout: fanout, clock: clk}
}

func validAlert() domain.CreateAlertInput {
	return domain.CreateAlertInput{
		Title:       "Flu clinic",
		Message:     "Walk-in vaccinations today",
		Priority:    domain.AlertPriorityHigh,
		Duration:    2 * time.Hour,
		CreatedByID: "p1",
	}
}

func TestCreateAlertFreezesRecipientsAndReachesOnlyLiveChannels(t *testing.T) {
	f := newAlertFixture(t, "s1", "s2")
	ch := newLiveChannel("s1-phone")
	require.NoError(t, f.registry.Join("s1", ch))

	alert, err := f.svc.Create(context.Background(), validAlert())
	require.NoError(t, err)
	require.Equal(t, domain.AlertStatusDraft, alert.Status)
	require.Equal(t, []string{"s1", "s2"}, alert.Recipients)
	require.Equal(t, alert.StartTime.Add(2*time.Hour), alert.EndTime)

	got := ch.received()
	require.Len(t, got, 1)
	require.Equal(t, realtime.EventNewAlert, got[0].Event)

	var payload events.Alert
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	require.Equal(t, alert.ID, payload.AlertID)
	require.Equal(t, "DRAFT", payload.Status)
	require.Equal(t, "HIGH", payload.Priority)

	require.Zero(t, f.registry.Sessions("s2"))
	require.Equal(t, map[string]int{"s1": 1, "s2": 1}, f.fanout.recipients())
}

func TestCreateAlertDefaultsPriorityToMedium(t *testing.T) {
	f := newAlertFixture(t, "s1")
	in := validAlert()
	in.Priority = ""

	alert, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, domain.AlertPriorityMedium, alert.Priority)
}

func TestCreateAlertValidation(t *testing.T) {
	f := newAlertFixture(t, "s1")

	cases := map[string]func(*domain.CreateAlertInput){
		"missing title":    func(in *domain.CreateAlertInput) { in.Title = "  " },
		"missing message":  func(in *domain.CreateAlertInput) { in.Message = "" },
		"unknown priority": func(in *domain.CreateAlertInput) { in.Priority = "URGENT" },
		"zero duration":    func(in *domain.CreateAlertInput) { in.Duration = 0 },
		"missing creator":  func(in *domain.CreateAlertInput) { in.CreatedByID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validAlert()
			mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrInvalidAlert)
		})
	}
	require.Empty(t, f.fanout.recipients())
}

func TestCreateAlertPersistenceFailureBroadcastsNothing(t *testing.T) {
	store := memory.NewStore()
	store.PutProfile(domain.Profile{UserID: "s1"}, true)
	registry := realtime.NewRegistry(logging.Discard())
	defer registry.Close()
	ch := newLiveChannel("s1-phone")
	require.NoError(t, registry.Join("s1", ch))

	svc := domain.NewAlertService(failingAlertRepo{AlertRepository: store, createErr: errBoom}, store, registry, logging.Discard())
	_, err := svc.Create(context.Background(), validAlert())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.Empty(t, ch.received())
}

func TestPublishResendsToFrozenRecipientSet(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t, "s1", "s2")
	alert, err := f.svc.Create(ctx, validAlert())
	require.NoError(t, err)

	// Roster changes after creation do not change who the alert addresses.
	f.store.RemoveStudent("s2")
	f.store.PutProfile(domain.Profile{UserID: "s3"}, true)
	s3 := newLiveChannel("s3-laptop")
	require.NoError(t, f.registry.Join("s3", s3))
	s1 := newLiveChannel("s1-phone")
	require.NoError(t, f.registry.Join("s1", s1))
	f.fanout.reset()

	published, err := f.svc.Publish(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlertStatusActive, published.Status)
	require.Equal(t, map[string]int{"s1": 1, "s2": 1}, f.fanout.recipients())
	require.Empty(t, s3.received())

	got := s1.received()
	require.Len(t, got, 1)
	require.Equal(t, realtime.EventAlertUpdate, got[0].Event)

	// Publishing again re-sends the update.
	_, err = f.svc.Publish(ctx, alert.ID)
	require.NoError(t, err)
	require.Len(t, s1.received(), 2)
}

func TestPublishUnknownAlert(t *testing.T) {
	f := newAlertFixture(t, "s1")
	_, err := f.svc.Publish(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrAlertNotFound)
	require.Empty(t, f.fanout.recipients())
}

func TestDeleteAlertPushesNothing(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t, "s1")
	alert, err := f.svc.Create(ctx, validAlert())
	require.NoError(t, err)
	f.fanout.reset()

	require.NoError(t, f.svc.Delete(ctx, alert.ID))
	require.Empty(t, f.fanout.recipients())

	_, err = f.svc.Get(ctx, alert.ID)
	require.ErrorIs(t, err, domain.ErrAlertNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, alert.ID), domain.ErrAlertNotFound)
}

func TestAlertExpiresLazily(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t, "s1")
	alert, err := f.svc.Create(ctx, validAlert())
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, alert.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AlertStatusDraft, stored.EffectiveStatus(f.svc.Now()))

	f.clock.Advance(2 * time.Hour)
	require.Equal(t, domain.AlertStatusExpired, stored.EffectiveStatus(f.svc.Now()))
	require.Equal(t, domain.AlertStatusDraft, stored.Status)
}

func TestNilFanoutStillPersists(t *testing.T) {
	store := memory.NewStore()
	store.PutProfile(domain.Profile{UserID: "s1"}, true)
	svc := domain.NewAlertService(store, store, nil, logging.Discard())

	alert, err := svc.Create(context.Background(), validAlert())
	require.NoError(t, err)

	alerts, _, err := svc.ListForRecipient(context.Background(), "s1", nil, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, alert.ID, alerts[0].ID)
}
