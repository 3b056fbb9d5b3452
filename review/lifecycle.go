/*
Package review drives trip-level state transitions and the day-by-day
exemption cascade.

PURPOSE:
  Handles the full lifecycle of a trip under review:
  1. Create:   validate dates/overlap, materialize one TravelDay per date
  2. Finish:   reconcile the day set (idempotent upsert by (trip, date))
  3. Finalize: apply per-day exemption decisions and cascade expense states
  4. Reopen:   return a reviewed trip to review, resetting days and expenses

REVIEW FLOW:

  Create ──▶ in_review ──FinalizeReview──▶ reviewed
                 ▲                            │
                 └──────────Reopen────────────┘

CASCADE INVARIANT:
  Once a TravelDay is reviewed, every expense attached to it is in a derived
  state: rejected when the day is exempt, approved otherwise. Expense states
  are never set independently while the day stands reviewed.

ATOMICITY:
  Finalize and Reopen run inside one store transaction; a day is never left
  "partially" reviewed. The conversation side effect fires only after the
  transaction commits and its failure never rolls the review back.

SEE ALSO:
  - ledger.go: the per-day cascade engine and batch day updates
  - travel/store.go: the persistence contract these services run against
*/
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

// Lifecycle owns trip-level transitions. Conversations is optional; when nil,
// review notes simply do not open a thread.
type Lifecycle struct {
	Store         travel.TxStore
	Ledger        *DayLedger
	Conversations travel.ConversationStarter

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func NewLifecycle(store travel.TxStore, conversations travel.ConversationStarter) *Lifecycle {
	return &Lifecycle{
		Store:         store,
		Ledger:        &DayLedger{Store: store},
		Conversations: conversations,
		Now:           time.Now,
	}
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// =============================================================================
// CREATE
// =============================================================================

type CreateTripInput struct {
	EmployeeID     travel.EmployeeID
	Destination    string
	City           string
	Country        string
	International  bool
	VisitedCompany string
	Reason         string
	Start          time.Time
	End            time.Time
}

// Create validates and registers a new trip, materializing one TravelDay per
// calendar date in [start, end]. Trips are created in_review regardless of
// how their window relates to today; there are no intermediate states.
func (l *Lifecycle) Create(ctx context.Context, in CreateTripInput) (*travel.Trip, error) {
	start, end := travel.Date(in.Start), travel.Date(in.End)
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s: %w",
			end.Format("2006-01-02"), start.Format("2006-01-02"), travel.ErrValidation)
	}
	if in.Destination == "" {
		return nil, fmt.Errorf("destination is required: %w", travel.ErrValidation)
	}

	emp, err := l.Store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("employee %s: %w", in.EmployeeID, travel.ErrNotFound)
	}

	// Only active (in-review) trips block the window; reviewed history does not.
	overlap, err := l.Store.HasOverlappingTrip(ctx, in.EmployeeID, start, end, travel.TripInReview)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, &travel.TripOverlapError{EmployeeID: in.EmployeeID, Start: start, End: end}
	}

	now := l.now()
	trip := travel.Trip{
		ID:             travel.TripID(uuid.NewString()),
		EmployeeID:     emp.ID,
		CompanyID:      emp.CompanyID,
		Destination:    in.Destination,
		City:           in.City,
		Country:        in.Country,
		International:  in.International,
		VisitedCompany: in.VisitedCompany,
		Reason:         in.Reason,
		Start:          start,
		End:            end,
		DaysTraveled:   travel.DaySpan(start, end),
		State:          travel.TripInReview,
		RequestedAt:    now,
		UpdatedAt:      now,
	}

	err = l.Store.WithTx(ctx, func(st travel.Store) error {
		if err := st.InsertTrip(ctx, trip); err != nil {
			return err
		}
		return upsertDaySpan(ctx, st, trip.ID, start, end)
	})
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

// =============================================================================
// FINISH
// =============================================================================

// Finish reconciles the trip's day set, creating any missing TravelDay rows
// as exempt=true, reviewed=false. Idempotent: calling it twice never
// duplicates rows. Reviewed trips are rejected.
func (l *Lifecycle) Finish(ctx context.Context, id travel.TripID) (*travel.Trip, error) {
	trip, err := l.Store.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, fmt.Errorf("trip %s: %w", id, travel.ErrNotFound)
	}
	if trip.State != travel.TripInReview {
		return nil, &travel.StateTransitionError{TripID: id, From: trip.State, Target: "finish"}
	}

	err = l.Store.WithTx(ctx, func(st travel.Store) error {
		return upsertDaySpan(ctx, st, trip.ID, trip.Start, trip.End)
	})
	if err != nil {
		return nil, err
	}
	return trip, nil
}

// upsertDaySpan guarantees a TravelDay row for every date in [start, end].
func upsertDaySpan(ctx context.Context, st travel.Store, trip travel.TripID, start, end time.Time) error {
	for d := travel.Date(start); !d.After(travel.Date(end)); d = d.AddDate(0, 0, 1) {
		day := travel.TravelDay{
			ID:     travel.DayID(uuid.NewString()),
			TripID: trip,
			Date:   d,
			Exempt: true,
		}
		if err := st.UpsertDay(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// FINALIZE REVIEW
// =============================================================================

// DayDecision is one reviewer decision: the day and its exemption status.
type DayDecision struct {
	DayID  travel.DayID
	Exempt bool
}

// ReviewResult summarizes a finalized review.
type ReviewResult struct {
	TripID              travel.TripID
	DaysProcessed       int
	DaysNonExempt       int
	ConversationCreated bool
}

// FinalizeReview applies the decisions to every day of the trip, cascades
// expense states per day, and transitions the trip to reviewed. The decision
// set must cover the trip's day set exactly; a count mismatch or an unknown
// day ID rejects the whole call with no mutation.
func (l *Lifecycle) FinalizeReview(ctx context.Context, id travel.TripID, decisions []DayDecision, note string, actor travel.Role, actorUser travel.UserID) (*ReviewResult, error) {
	trip, err := l.Store.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, fmt.Errorf("trip %s: %w", id, travel.ErrNotFound)
	}
	if actor != nil && !actor.CanManageTrip(trip) {
		return nil, fmt.Errorf("reviewing trip %s: %w", id, travel.ErrUnauthorized)
	}

	result := &ReviewResult{TripID: id}

	err = l.Store.WithTx(ctx, func(st travel.Store) error {
		// Re-read inside the transaction so concurrent finalizations on the
		// same trip serialize on its state.
		cur, err := st.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		if cur.State != travel.TripInReview {
			return &travel.StateTransitionError{TripID: id, From: cur.State, Target: "finalize review"}
		}

		days, err := st.ListDays(ctx, id)
		if err != nil {
			return err
		}
		if len(decisions) != len(days) {
			return &travel.DayCountMismatchError{TripID: id, Expected: len(days), Found: len(decisions)}
		}

		known := make(map[travel.DayID]bool, len(days))
		for _, d := range days {
			known[d.ID] = true
		}
		seen := make(map[travel.DayID]bool, len(decisions))

		// Apply in the order submitted; each day is independent so the
		// visible result is order-free.
		for _, dec := range decisions {
			if !known[dec.DayID] {
				return &travel.UnknownDayError{TripID: id, DayID: dec.DayID}
			}
			if seen[dec.DayID] {
				return &travel.DayCountMismatchError{TripID: id, Expected: len(days), Found: len(decisions)}
			}
			seen[dec.DayID] = true

			if err := l.Ledger.Apply(ctx, st, dec.DayID, dec.Exempt); err != nil {
				return err
			}
			result.DaysProcessed++
			if !dec.Exempt {
				result.DaysNonExempt++
			}
		}

		if err := st.UpdateTripState(ctx, id, travel.TripReviewed, l.now()); err != nil {
			return err
		}
		return st.MarkCompanyPending(ctx, trip.CompanyID)
	})
	if err != nil {
		return nil, err
	}

	// Conversation thread for disputed days: after commit, fire-and-forget.
	if result.DaysNonExempt > 0 && note != "" && l.Conversations != nil {
		emp, err := l.Store.GetEmployee(ctx, trip.EmployeeID)
		if err == nil && emp != nil {
			if err := l.Conversations.Start(ctx, actorUser, emp.UserID, id, note); err == nil {
				result.ConversationCreated = true
			}
		}
	}

	return result, nil
}

// =============================================================================
// REOPEN
// =============================================================================

// Reopen returns a reviewed trip to review: every day loses its reviewed
// flag and every non-pending expense returns to pending. Already-written
// snapshots remain frozen evidence of the prior reviewed state.
func (l *Lifecycle) Reopen(ctx context.Context, id travel.TripID, actor travel.Role) (*travel.Trip, error) {
	trip, err := l.Store.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, fmt.Errorf("trip %s: %w", id, travel.ErrNotFound)
	}
	if actor != nil && !actor.CanManageTrip(trip) {
		return nil, fmt.Errorf("reopening trip %s: %w", id, travel.ErrUnauthorized)
	}

	err = l.Store.WithTx(ctx, func(st travel.Store) error {
		cur, err := st.GetTrip(ctx, id)
		if err != nil {
			return err
		}
		if cur.State != travel.TripReviewed {
			return &travel.StateTransitionError{TripID: id, From: cur.State, Target: "reopen"}
		}
		if err := st.UpdateTripState(ctx, id, travel.TripInReview, l.now()); err != nil {
			return err
		}
		if err := st.ResetDayReviews(ctx, id); err != nil {
			return err
		}
		if err := st.ResetExpenseStates(ctx, id); err != nil {
			return err
		}
		return st.MarkCompanyPending(ctx, trip.CompanyID)
	})
	if err != nil {
		return nil, err
	}

	trip.State = travel.TripInReview
	return trip, nil
}

// =============================================================================
// EXPENSES
// =============================================================================

type AddExpenseInput struct {
	TripID      travel.TripID
	DayID       travel.DayID // optional
	Concept     string
	Amount      string // decimal string, e.g. "120.50"
	ReceiptName string
	ExpenseDate time.Time
}

// AddExpense registers an expense against an in-review trip. Reviewed trips
// reject new expenses: their expense states are derived from the review.
func (l *Lifecycle) AddExpense(ctx context.Context, in AddExpenseInput, actor travel.Role) (*travel.Expense, error) {
	trip, err := l.Store.GetTrip(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, fmt.Errorf("trip %s: %w", in.TripID, travel.ErrNotFound)
	}
	if trip.State != travel.TripInReview {
		return nil, &travel.StateTransitionError{TripID: in.TripID, From: trip.State, Target: "add expense to"}
	}

	emp, err := l.Store.GetEmployee(ctx, trip.EmployeeID)
	if err != nil {
		return nil, err
	}
	if actor != nil && !actor.CanActFor(emp) {
		return nil, fmt.Errorf("adding expense to trip %s: %w", in.TripID, travel.ErrUnauthorized)
	}

	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	if in.DayID != "" {
		days, err := l.Store.ListDays(ctx, in.TripID)
		if err != nil {
			return nil, err
		}
		found := false
		for _, d := range days {
			if d.ID == in.DayID {
				found = true
				break
			}
		}
		if !found {
			return nil, &travel.UnknownDayError{TripID: in.TripID, DayID: in.DayID}
		}
	}

	now := l.now()
	expense := travel.Expense{
		ID:          travel.ExpenseID(uuid.NewString()),
		EmployeeID:  trip.EmployeeID,
		CompanyID:   trip.CompanyID,
		TripID:      trip.ID,
		DayID:       in.DayID,
		Concept:     in.Concept,
		Amount:      amount,
		State:       travel.ExpensePending,
		ReceiptName: in.ReceiptName,
		ExpenseDate: travel.Date(in.ExpenseDate),
		RequestedAt: now,
	}
	if err := l.Store.InsertExpense(ctx, expense); err != nil {
		return nil, err
	}
	return &expense, nil
}
