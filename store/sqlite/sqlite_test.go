package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/travel-engine/store/sqlite"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	salary := decimal.RequireFromString("18589.45")
	require.NoError(t, store.SaveCompany(ctx, travel.Company{
		ID: "acme", Name: "Acme", UserID: "user-acme", Periodicity: travel.PeriodicityQuarterly,
	}))
	require.NoError(t, store.SaveEmployee(ctx, travel.Employee{
		ID: "emp-1", CompanyID: "acme", UserID: "user-emp-1", Name: "Ana", Salary: &salary,
	}))
	return store
}

func seedTrip(t *testing.T, store *sqlite.Store, id travel.TripID, state travel.TripState, start, end time.Time) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertTrip(context.Background(), travel.Trip{
		ID: id, EmployeeID: "emp-1", CompanyID: "acme",
		Destination: "Berlin", City: "Berlin", Country: "DE",
		Start: start, End: end, DaysTraveled: travel.DaySpan(start, end),
		State: state, RequestedAt: now, UpdatedAt: now,
	}))
}

// =============================================================================
// ROUND TRIP TESTS
// =============================================================================

func TestCompany_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetCompany(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, travel.PeriodicityQuarterly, got.Periodicity)
	assert.Nil(t, got.NextReleaseAt)

	next := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	got.NextReleaseAt = &next
	got.HasPendingReviewChanges = true
	require.NoError(t, store.SaveCompanySchedule(ctx, got))

	again, err := store.GetCompany(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, again.NextReleaseAt)
	assert.Equal(t, next, *again.NextReleaseAt)
	assert.True(t, again.HasPendingReviewChanges)

	missing, err := store.GetCompany(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEmployee_SalaryRoundTrip(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Salary)
	assert.True(t, got.Salary.Equal(decimal.RequireFromString("18589.45")))
}

func TestTrip_RoundTripAndStateUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := travel.NewDate(2025, time.March, 10)
	end := travel.NewDate(2025, time.March, 12)
	seedTrip(t, store, "trip-1", travel.TripInReview, start, end)

	got, err := store.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, start, got.Start)
	assert.Equal(t, end, got.End)
	assert.Equal(t, 3, got.DaysTraveled)

	at := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateTripState(ctx, "trip-1", travel.TripReviewed, at))

	got, _ = store.GetTrip(ctx, "trip-1")
	assert.Equal(t, travel.TripReviewed, got.State)
	assert.Equal(t, at, got.UpdatedAt)
}

func TestHasOverlappingTrip_StateFiltered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTrip(t, store, "trip-1", travel.TripInReview,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))

	overlap, err := store.HasOverlappingTrip(ctx, "emp-1",
		travel.NewDate(2025, time.March, 12), travel.NewDate(2025, time.March, 14), travel.TripInReview)
	require.NoError(t, err)
	assert.True(t, overlap, "shared boundary day overlaps")

	overlap, err = store.HasOverlappingTrip(ctx, "emp-1",
		travel.NewDate(2025, time.March, 13), travel.NewDate(2025, time.March, 14), travel.TripInReview)
	require.NoError(t, err)
	assert.False(t, overlap)

	overlap, err = store.HasOverlappingTrip(ctx, "emp-1",
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12), travel.TripReviewed)
	require.NoError(t, err)
	assert.False(t, overlap, "state filter excludes in-review trips")
}

func TestUpsertDay_UniquePerTripAndDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, store, "trip-1", travel.TripInReview,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))

	date := travel.NewDate(2025, time.March, 10)
	require.NoError(t, store.UpsertDay(ctx, travel.TravelDay{ID: "d1", TripID: "trip-1", Date: date, Exempt: true}))
	require.NoError(t, store.SetDayReview(ctx, "d1", false, true))

	// Re-upserting the same (trip, date) leaves the reviewed row untouched.
	require.NoError(t, store.UpsertDay(ctx, travel.TravelDay{ID: "d1-dup", TripID: "trip-1", Date: date, Exempt: true}))

	days, err := store.ListDays(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, travel.DayID("d1"), days[0].ID)
	assert.False(t, days[0].Exempt)
	assert.True(t, days[0].Reviewed)
}

func TestCountExemptDays_WindowAndFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, store, "trip-1", travel.TripReviewed,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))

	require.NoError(t, store.UpsertDay(ctx, travel.TravelDay{
		ID: "d1", TripID: "trip-1", Date: travel.NewDate(2025, time.March, 10), Exempt: true, Reviewed: true}))
	require.NoError(t, store.UpsertDay(ctx, travel.TravelDay{
		ID: "d2", TripID: "trip-1", Date: travel.NewDate(2025, time.March, 11), Exempt: false, Reviewed: true}))
	require.NoError(t, store.UpsertDay(ctx, travel.TravelDay{
		ID: "d3", TripID: "trip-1", Date: travel.NewDate(2025, time.March, 12), Exempt: true, Reviewed: false}))

	count, err := store.CountExemptDays(ctx, "emp-1",
		travel.NewDate(2025, time.January, 1), travel.NewDate(2025, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only reviewed exempt days count")

	count, err = store.CountExemptDays(ctx, "emp-1",
		travel.NewDate(2025, time.April, 1), travel.NewDate(2025, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, count, "window excludes the trip")
}

func TestExpense_CascadeByDayAndReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, store, "trip-1", travel.TripInReview,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	require.NoError(t, store.UpsertDay(ctx, travel.TravelDay{
		ID: "d1", TripID: "trip-1", Date: travel.NewDate(2025, time.March, 10), Exempt: true}))

	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertExpense(ctx, travel.Expense{
		ID: "e1", EmployeeID: "emp-1", CompanyID: "acme", TripID: "trip-1", DayID: "d1",
		Concept: "hotel", Amount: decimal.RequireFromString("120.50"),
		State: travel.ExpensePending, ExpenseDate: travel.NewDate(2025, time.March, 10), RequestedAt: now,
	}))
	require.NoError(t, store.InsertExpense(ctx, travel.Expense{
		ID: "e2", EmployeeID: "emp-1", CompanyID: "acme", TripID: "trip-1",
		Concept: "taxi", Amount: decimal.RequireFromString("12.00"),
		State: travel.ExpensePending, ExpenseDate: travel.NewDate(2025, time.March, 10), RequestedAt: now,
	}))

	require.NoError(t, store.SetExpenseStateByDay(ctx, "d1", travel.ExpenseRejected))

	byDay, err := store.ListExpensesByDay(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, travel.ExpenseRejected, byDay[0].State)

	all, err := store.ListExpensesByTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		if e.ID == "e2" {
			assert.Equal(t, travel.ExpensePending, e.State, "day-less expense untouched")
		}
	}

	require.NoError(t, store.ResetExpenseStates(ctx, "trip-1"))
	all, _ = store.ListExpensesByTrip(ctx, "trip-1")
	for _, e := range all {
		assert.Equal(t, travel.ExpensePending, e.State)
	}
}

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestSnapshot_LatestPerTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedTrip(t, store, "trip-1", travel.TripReviewed,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 11))

	older := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(90 * 24 * time.Hour)

	require.NoError(t, store.InsertTripSnapshot(ctx, travel.TripSnapshot{
		ID: "snap-1", TripID: "trip-1", CompanyID: "acme", EmployeeID: "emp-1",
		Destination: "Berlin", State: travel.TripReviewed,
		Start: travel.NewDate(2025, time.March, 10), End: travel.NewDate(2025, time.March, 11),
		DaysTraveled: 2, TakenAt: older,
		Days: []travel.DaySnapshot{
			{ID: "ds-1", SnapshotID: "snap-1", DayID: "d1", Date: travel.NewDate(2025, time.March, 10), Exempt: true, Reviewed: true},
		},
		Expenses: []travel.ExpenseSnapshot{
			{ID: "es-1", SnapshotID: "snap-1", ExpenseID: "e1", DayID: "d1", Concept: "hotel",
				Amount: decimal.RequireFromString("120.50"), State: travel.ExpenseRejected},
		},
	}))
	require.NoError(t, store.InsertTripSnapshot(ctx, travel.TripSnapshot{
		ID: "snap-2", TripID: "trip-1", CompanyID: "acme", EmployeeID: "emp-1",
		Destination: "Berlin", International: true, State: travel.TripReviewed,
		Start: travel.NewDate(2025, time.March, 10), End: travel.NewDate(2025, time.March, 11),
		DaysTraveled: 2, TakenAt: newer,
	}))

	latest, err := store.LatestSnapshotByTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "snap-2", latest.ID)
	assert.True(t, latest.International)

	byCompany, err := store.ListLatestSnapshotsByCompany(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, byCompany, 1, "one latest snapshot per trip")
	assert.Equal(t, "snap-2", byCompany[0].ID)

	// Children travel with the snapshot they were frozen under.
	first, err := store.LatestSnapshotByTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Empty(t, first.Days)

	none, err := store.LatestSnapshotByTrip(ctx, "trip-ghost")
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// NOTIFICATION TESTS
// =============================================================================

func TestNotification_UnreadLookupAndRewrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertNotification(ctx, travel.Notification{
		ID: "n1", Type: travel.NotifReviewDeadlineChanged, Message: "old deadline",
		UserID: "user-acme", CreatedAt: at,
	}))

	found, err := store.FindUnreadNotification(ctx, "user-acme", travel.NotifReviewDeadlineChanged)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "n1", found.ID)

	require.NoError(t, store.UpdateNotificationMessage(ctx, "n1", "new deadline", at.Add(time.Hour)))

	notifs, err := store.ListNotifications(ctx, "user-acme")
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "new deadline", notifs[0].Message)

	none, err := store.FindUnreadNotification(ctx, "user-acme", travel.NotifTripReviewed)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: a transaction that inserts a trip and then fails
	// THEN: the trip is not visible afterwards

	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(st travel.Store) error {
		now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
		if err := st.InsertTrip(ctx, travel.Trip{
			ID: "trip-tx", EmployeeID: "emp-1", CompanyID: "acme", Destination: "Berlin",
			Start: travel.NewDate(2025, time.March, 10), End: travel.NewDate(2025, time.March, 10),
			DaysTraveled: 1, State: travel.TripInReview, RequestedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetTrip(ctx, "trip-tx")
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back insert is invisible")
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(st travel.Store) error {
		now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
		return st.InsertTrip(ctx, travel.Trip{
			ID: "trip-tx", EmployeeID: "emp-1", CompanyID: "acme", Destination: "Berlin",
			Start: travel.NewDate(2025, time.March, 10), End: travel.NewDate(2025, time.March, 10),
			DaysTraveled: 1, State: travel.TripInReview, RequestedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	got, err := store.GetTrip(ctx, "trip-tx")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestUpdateTripState_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateTripState(context.Background(), "ghost", travel.TripReviewed, time.Now())
	assert.ErrorIs(t, err, travel.ErrNotFound)
}
