package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/travel-engine/review"
	"github.com/warp/travel-engine/store/memory"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingConversations struct {
	started int
	note    string
}

func (r *recordingConversations) Start(_ context.Context, _, _ travel.UserID, _ travel.TripID, note string) error {
	r.started++
	r.note = note
	return nil
}

func newTestLifecycle(t *testing.T) (*review.Lifecycle, *memory.Memory, *recordingConversations) {
	store := memory.New()
	conversations := &recordingConversations{}
	lifecycle := review.NewLifecycle(store, conversations)
	lifecycle.Now = func() time.Time {
		return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	}

	ctx := context.Background()
	require.NoError(t, store.SaveCompany(ctx, travel.Company{
		ID: "acme", Name: "Acme", UserID: "user-acme", Periodicity: travel.PeriodicityQuarterly,
	}))
	salary := decimal.RequireFromString("18589.45")
	require.NoError(t, store.SaveEmployee(ctx, travel.Employee{
		ID: "emp-1", CompanyID: "acme", UserID: "user-emp-1", Name: "Ana", Salary: &salary,
	}))
	return lifecycle, store, conversations
}

func createTrip(t *testing.T, l *review.Lifecycle, start, end time.Time) *travel.Trip {
	trip, err := l.Create(context.Background(), review.CreateTripInput{
		EmployeeID:  "emp-1",
		Destination: "Berlin",
		City:        "Berlin",
		Country:     "DE",
		Start:       start,
		End:         end,
	})
	require.NoError(t, err)
	return trip
}

func addExpense(t *testing.T, l *review.Lifecycle, trip travel.TripID, day travel.DayID, amount string) *travel.Expense {
	e, err := l.AddExpense(context.Background(), review.AddExpenseInput{
		TripID:      trip,
		DayID:       day,
		Concept:     "hotel",
		Amount:      amount,
		ExpenseDate: travel.NewDate(2025, time.March, 10),
	}, travel.Master{})
	require.NoError(t, err)
	return e
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestCreate_MaterializesOneDayPerDate(t *testing.T) {
	// GIVEN: a three-day window
	// WHEN: creating the trip
	// THEN: three travel days exist, exempt and unreviewed, trip is in_review

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))

	assert.Equal(t, travel.TripInReview, trip.State)
	assert.Equal(t, 3, trip.DaysTraveled)

	days, err := store.ListDays(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.True(t, d.Exempt, "days start exempt")
		assert.False(t, d.Reviewed, "days start unreviewed")
	}
	assert.Equal(t, travel.NewDate(2025, time.March, 10), days[0].Date)
	assert.Equal(t, travel.NewDate(2025, time.March, 12), days[2].Date)
}

func TestCreate_EndBeforeStart_Rejected(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)

	_, err := lifecycle.Create(context.Background(), review.CreateTripInput{
		EmployeeID:  "emp-1",
		Destination: "Berlin",
		Start:       travel.NewDate(2025, time.March, 12),
		End:         travel.NewDate(2025, time.March, 10),
	})

	assert.ErrorIs(t, err, travel.ErrValidation)
}

func TestCreate_OverlapWithActiveTrip_Rejected(t *testing.T) {
	// GIVEN: an in-review trip March 10-12
	// WHEN: creating an overlapping trip March 12-14 for the same employee
	// THEN: rejected with TripOverlapError

	lifecycle, _, _ := newTestLifecycle(t)

	createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))

	_, err := lifecycle.Create(context.Background(), review.CreateTripInput{
		EmployeeID:  "emp-1",
		Destination: "Paris",
		Start:       travel.NewDate(2025, time.March, 12),
		End:         travel.NewDate(2025, time.March, 14),
	})

	var overlapErr *travel.TripOverlapError
	assert.ErrorAs(t, err, &overlapErr)
	assert.ErrorIs(t, err, travel.ErrValidation)
}

func TestCreate_OverlapWithReviewedTrip_Allowed(t *testing.T) {
	// Reviewed history does not block new windows.

	lifecycle, _, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))
	finalizeAllExempt(t, lifecycle, trip.ID)

	_, err := lifecycle.Create(ctx, review.CreateTripInput{
		EmployeeID:  "emp-1",
		Destination: "Paris",
		Start:       travel.NewDate(2025, time.March, 11),
		End:         travel.NewDate(2025, time.March, 13),
	})
	assert.NoError(t, err)
}

// =============================================================================
// FINISH TESTS
// =============================================================================

func TestFinish_Idempotent(t *testing.T) {
	// GIVEN: a created trip
	// WHEN: finishing twice
	// THEN: the day set does not change

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))

	_, err := lifecycle.Finish(ctx, trip.ID)
	require.NoError(t, err)
	_, err = lifecycle.Finish(ctx, trip.ID)
	require.NoError(t, err)

	days, err := store.ListDays(ctx, trip.ID)
	require.NoError(t, err)
	assert.Len(t, days, 3, "finish never duplicates days")
}

func TestFinish_ReviewedTrip_Rejected(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	finalizeAllExempt(t, lifecycle, trip.ID)

	_, err := lifecycle.Finish(context.Background(), trip.ID)
	assert.ErrorIs(t, err, travel.ErrStateConflict)
}

// =============================================================================
// FINALIZE REVIEW TESTS
// =============================================================================

func TestFinalizeReview_CascadesExpenseStates(t *testing.T) {
	// GIVEN: a three-day trip with one expense per day
	// WHEN: reviewing days 1 and 3 as exempt, day 2 as non-exempt, with a note
	// THEN: expenses on exempt days are rejected, on the non-exempt day
	//       approved, the trip is reviewed, and a conversation is opened

	lifecycle, store, conversations := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))
	days, err := store.ListDays(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, days, 3)

	e1 := addExpense(t, lifecycle, trip.ID, days[0].ID, "120.50")
	e2 := addExpense(t, lifecycle, trip.ID, days[1].ID, "80.00")
	e3 := addExpense(t, lifecycle, trip.ID, days[2].ID, "35.25")

	result, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
		{DayID: days[1].ID, Exempt: false},
		{DayID: days[2].ID, Exempt: true},
	}, "day 2 was a personal day", travel.Master{}, "user-reviewer")
	require.NoError(t, err)

	assert.Equal(t, 3, result.DaysProcessed)
	assert.Equal(t, 1, result.DaysNonExempt)
	assert.True(t, result.ConversationCreated)
	assert.Equal(t, 1, conversations.started)

	got, err := store.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, travel.TripReviewed, got.State)

	expenses, err := store.ListExpensesByTrip(ctx, trip.ID)
	require.NoError(t, err)
	states := map[travel.ExpenseID]travel.ExpenseState{}
	for _, e := range expenses {
		states[e.ID] = e.State
	}
	assert.Equal(t, travel.ExpenseRejected, states[e1.ID], "exempt day rejects its expenses")
	assert.Equal(t, travel.ExpenseApproved, states[e2.ID], "non-exempt day approves its expenses")
	assert.Equal(t, travel.ExpenseRejected, states[e3.ID])

	company, err := store.GetCompany(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, company.HasPendingReviewChanges, "review marks the company pending")
}

func TestFinalizeReview_NoNoteMeansNoConversation(t *testing.T) {
	lifecycle, store, conversations := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 11))
	days, _ := store.ListDays(ctx, trip.ID)

	result, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: false},
		{DayID: days[1].ID, Exempt: false},
	}, "", travel.Master{}, "user-reviewer")
	require.NoError(t, err)

	assert.False(t, result.ConversationCreated)
	assert.Equal(t, 0, conversations.started)
}

func TestFinalizeReview_CountMismatch_NothingApplied(t *testing.T) {
	// GIVEN: a three-day trip
	// WHEN: submitting only two decisions
	// THEN: DayCountMismatchError, and no day or expense was touched

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 12))
	days, _ := store.ListDays(ctx, trip.ID)
	e := addExpense(t, lifecycle, trip.ID, days[0].ID, "10.00")

	_, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
		{DayID: days[1].ID, Exempt: false},
	}, "", travel.Master{}, "")

	var mismatch *travel.DayCountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Found)

	got, _ := store.GetTrip(ctx, trip.ID)
	assert.Equal(t, travel.TripInReview, got.State, "trip state unchanged")
	after, _ := store.ListDays(ctx, trip.ID)
	for _, d := range after {
		assert.False(t, d.Reviewed, "no day was reviewed")
	}
	expenses, _ := store.ListExpensesByTrip(ctx, trip.ID)
	assert.Equal(t, travel.ExpensePending, expenses[0].State)
	_ = e
}

func TestFinalizeReview_UnknownDay_Rejected(t *testing.T) {
	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 11))
	days, _ := store.ListDays(ctx, trip.ID)

	_, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
		{DayID: "not-a-day", Exempt: false},
	}, "", travel.Master{}, "")

	var unknown *travel.UnknownDayError
	assert.ErrorAs(t, err, &unknown)
}

func TestFinalizeReview_AlreadyReviewed_Conflict(t *testing.T) {
	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	finalizeAllExempt(t, lifecycle, trip.ID)

	days, _ := store.ListDays(ctx, trip.ID)
	_, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
	}, "", travel.Master{}, "")

	assert.ErrorIs(t, err, travel.ErrStateConflict)
}

func TestFinalizeReview_EmployeeScope_Forbidden(t *testing.T) {
	// Employees never manage reviews, even on their own trips.

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	days, _ := store.ListDays(ctx, trip.ID)

	_, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
	}, "", travel.EmployeeScope{EmployeeID: "emp-1", CompanyID: "acme"}, "user-emp-1")

	assert.ErrorIs(t, err, travel.ErrUnauthorized)
}

// =============================================================================
// REOPEN TESTS
// =============================================================================

func TestReopen_ResetsDaysAndExpenses(t *testing.T) {
	// GIVEN: a reviewed trip with cascaded expense states
	// WHEN: reopening
	// THEN: trip returns to in_review, days unreviewed (exemption kept),
	//       expenses pending again

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 11))
	days, _ := store.ListDays(ctx, trip.ID)
	addExpense(t, lifecycle, trip.ID, days[0].ID, "50.00")

	_, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
		{DayID: days[1].ID, Exempt: false},
	}, "", travel.Master{}, "")
	require.NoError(t, err)

	reopened, err := lifecycle.Reopen(ctx, trip.ID, travel.Master{})
	require.NoError(t, err)
	assert.Equal(t, travel.TripInReview, reopened.State)

	after, _ := store.ListDays(ctx, trip.ID)
	for _, d := range after {
		assert.False(t, d.Reviewed)
	}
	// The exemption decision itself survives the reopen.
	assert.True(t, after[0].Exempt)
	assert.False(t, after[1].Exempt)

	expenses, _ := store.ListExpensesByTrip(ctx, trip.ID)
	assert.Equal(t, travel.ExpensePending, expenses[0].State)
}

func TestReopen_InReviewTrip_Conflict(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))

	_, err := lifecycle.Reopen(context.Background(), trip.ID, travel.Master{})
	assert.ErrorIs(t, err, travel.ErrStateConflict)
}

func TestReopen_ThenReFinalize_RoundTrip(t *testing.T) {
	// A full reopen cycle: review, reopen, review with flipped decisions.

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	days, _ := store.ListDays(ctx, trip.ID)
	e := addExpense(t, lifecycle, trip.ID, days[0].ID, "50.00")

	_, err := lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: true},
	}, "", travel.Master{}, "")
	require.NoError(t, err)

	_, err = lifecycle.Reopen(ctx, trip.ID, travel.Master{})
	require.NoError(t, err)

	_, err = lifecycle.FinalizeReview(ctx, trip.ID, []review.DayDecision{
		{DayID: days[0].ID, Exempt: false},
	}, "", travel.Master{}, "")
	require.NoError(t, err)

	expenses, _ := store.ListExpensesByTrip(ctx, trip.ID)
	require.Len(t, expenses, 1)
	assert.Equal(t, e.ID, expenses[0].ID)
	assert.Equal(t, travel.ExpenseApproved, expenses[0].State, "flipped decision re-cascades")
}

// =============================================================================
// BATCH DAY TESTS
// =============================================================================

func TestSetExemptBatch_AllOrNothing(t *testing.T) {
	// GIVEN: a trip with two days
	// WHEN: a batch contains one valid and one unknown day ID
	// THEN: the whole batch fails and neither day changed

	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 11))
	days, _ := store.ListDays(ctx, trip.ID)

	err := lifecycle.Ledger.SetExemptBatch(ctx, trip.ID,
		[]travel.DayID{days[0].ID, "bogus"}, false, travel.Master{})

	var unknown *travel.UnknownDayError
	require.ErrorAs(t, err, &unknown)

	after, _ := store.ListDays(ctx, trip.ID)
	for _, d := range after {
		assert.True(t, d.Exempt, "no day was mutated")
		assert.False(t, d.Reviewed)
	}
}

func TestSetExemptBatch_CascadesAndMarksReviewed(t *testing.T) {
	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 11))
	days, _ := store.ListDays(ctx, trip.ID)
	addExpense(t, lifecycle, trip.ID, days[0].ID, "25.00")

	err := lifecycle.Ledger.SetExemptBatch(ctx, trip.ID,
		[]travel.DayID{days[0].ID}, false, travel.CompanyScope{CompanyID: "acme"})
	require.NoError(t, err)

	after, _ := store.ListDays(ctx, trip.ID)
	assert.False(t, after[0].Exempt)
	assert.True(t, after[0].Reviewed)
	assert.False(t, after[1].Reviewed, "untouched day stays unreviewed")

	expenses, _ := store.ListExpensesByDay(ctx, days[0].ID)
	require.Len(t, expenses, 1)
	assert.Equal(t, travel.ExpenseApproved, expenses[0].State)
}

func TestSetExemptBatch_WrongCompanyScope_Forbidden(t *testing.T) {
	lifecycle, store, _ := newTestLifecycle(t)
	ctx := context.Background()

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	days, _ := store.ListDays(ctx, trip.ID)

	err := lifecycle.Ledger.SetExemptBatch(ctx, trip.ID,
		[]travel.DayID{days[0].ID}, false, travel.CompanyScope{CompanyID: "other"})

	assert.ErrorIs(t, err, travel.ErrUnauthorized)
}

// =============================================================================
// EXPENSE TESTS
// =============================================================================

func TestAddExpense_ReviewedTrip_Rejected(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))
	finalizeAllExempt(t, lifecycle, trip.ID)

	_, err := lifecycle.AddExpense(context.Background(), review.AddExpenseInput{
		TripID:      trip.ID,
		Concept:     "taxi",
		Amount:      "12.00",
		ExpenseDate: travel.NewDate(2025, time.March, 10),
	}, travel.Master{})

	assert.ErrorIs(t, err, travel.ErrStateConflict)
}

func TestAddExpense_BadAmount_Rejected(t *testing.T) {
	lifecycle, _, _ := newTestLifecycle(t)

	trip := createTrip(t, lifecycle,
		travel.NewDate(2025, time.March, 10), travel.NewDate(2025, time.March, 10))

	_, err := lifecycle.AddExpense(context.Background(), review.AddExpenseInput{
		TripID:      trip.ID,
		Concept:     "taxi",
		Amount:      "-5.00",
		ExpenseDate: travel.NewDate(2025, time.March, 10),
	}, travel.Master{})

	assert.ErrorIs(t, err, travel.ErrValidation)
}

// =============================================================================
// HELPERS
// =============================================================================

func finalizeAllExempt(t *testing.T, l *review.Lifecycle, id travel.TripID) {
	ctx := context.Background()
	days, err := l.Store.ListDays(ctx, id)
	require.NoError(t, err)

	decisions := make([]review.DayDecision, len(days))
	for i, d := range days {
		decisions[i] = review.DayDecision{DayID: d.ID, Exempt: true}
	}
	_, err = l.FinalizeReview(ctx, id, decisions, "", travel.Master{}, "")
	require.NoError(t, err)
}
