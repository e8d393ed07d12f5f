package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/geo"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIncrementTodayConcurrentNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementToday(ctx, "user-1", 1)
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	entry, err := store.GetToday(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, n, entry.Steps)
}

func TestIncrementTodaySumsDeltas(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	deltas := []int{0, 12, 7, 1001}
	var last domain.StepLedgerEntry
	for _, d := range deltas {
		var err error
		last, err = store.IncrementToday(ctx, "user-1", d)
		require.NoError(t, err)
	}
	require.Equal(t, 1020, last.Steps)
	require.Equal(t, domain.LedgerSourceGPS, last.Source)

	_, err := store.IncrementToday(ctx, "user-1", -1)
	require.ErrorIs(t, err, domain.ErrNegativeDelta)
}

func TestLedgerRowsAreBucketedByUTCDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 3, 23, 59, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))

	_, err := store.IncrementToday(ctx, "user-1", 100)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	entry, err := store.GetToday(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, entry)

	next, err := store.IncrementToday(ctx, "user-1", 5)
	require.NoError(t, err)
	require.Equal(t, 5, next.Steps)
	require.Equal(t, time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), next.Date)
}

func TestMostRecentSample(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	prev, err := store.MostRecentSample(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, prev)

	at := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
	_, err = store.AppendSample(ctx, "user-1", geo.Point{Lat: 1, Lng: 2}, at)
	require.NoError(t, err)
	_, err = store.AppendSample(ctx, "user-1", geo.Point{Lat: 3, Lng: 4}, at.Add(time.Minute))
	require.NoError(t, err)

	prev, err = store.MostRecentSample(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 3.0, prev.Latitude)
	require.Equal(t, 4.0, prev.Longitude)
	require.Len(t, store.Samples("user-1"), 2)
}

func TestListForRecipientPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Create(ctx, domain.Alert{
			ID:         id,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Recipients: []string{"s1"},
		}))
	}
	require.NoError(t, store.Create(ctx, domain.Alert{ID: "x", CreatedAt: base, Recipients: []string{"s2"}}))

	page, next, err := store.ListForRecipient(ctx, "s1", nil, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, alertIDs(page))
	require.NotNil(t, next)

	page, next, err = store.ListForRecipient(ctx, "s1", next, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, alertIDs(page))
	require.Nil(t, next)
}

func TestListForRecipientFullLastPageHasNoCursor(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b"} {
		require.NoError(t, store.Create(ctx, domain.Alert{
			ID:         id,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Recipients: []string{"s1"},
		}))
	}

	page, next, err := store.ListForRecipient(ctx, "s1", nil, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, alertIDs(page))
	require.Nil(t, next)
}

func TestStoredRecipientsAreIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithClock(fixedClock(time.Now())))

	recipients := []string{"s1", "s2"}
	require.NoError(t, store.Create(ctx, domain.Alert{ID: "a", Recipients: recipients}))
	recipients[0] = "mutated"

	stored, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, stored.Recipients)
}

func alertIDs(alerts []domain.Alert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	return ids
}
