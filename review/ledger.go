/*
ledger.go - Per-day exemption cascade

PURPOSE:
  The single place where a day's exemption decision is recorded and the
  expense cascade is applied. Every code path that marks a day reviewed goes
  through DayLedger.Apply so the day/expense invariant cannot drift.

CASCADE RULE:
  exempt day     -> all its expenses become rejected
  non-exempt day -> all its expenses become approved

SEE ALSO:
  - lifecycle.go: calls Apply once per day during review finalization
*/
package review

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// DAY LEDGER
// =============================================================================

// DayLedger records exemption decisions day by day, keeping expense states in
// lockstep with the day they hang off.
type DayLedger struct {
	Store travel.TxStore
}

// Apply records the decision for one day against the given store (usually a
// transaction view) and cascades the derived state to the day's expenses.
func (dl *DayLedger) Apply(ctx context.Context, st travel.Store, id travel.DayID, exempt bool) error {
	if err := st.SetDayReview(ctx, id, exempt, true); err != nil {
		return err
	}
	state := travel.ExpenseApproved
	if exempt {
		state = travel.ExpenseRejected
	}
	return st.SetExpenseStateByDay(ctx, id, state)
}

// SetExemptBatch updates the exemption status of several days of one trip in
// a single transaction. Every ID must belong to the trip; one unknown ID
// fails the whole batch with nothing applied.
func (dl *DayLedger) SetExemptBatch(ctx context.Context, tripID travel.TripID, dayIDs []travel.DayID, exempt bool, actor travel.Role) error {
	trip, err := dl.Store.GetTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if trip == nil {
		return fmt.Errorf("trip %s: %w", tripID, travel.ErrNotFound)
	}
	if actor != nil && !actor.CanManageTrip(trip) {
		return fmt.Errorf("editing days of trip %s: %w", tripID, travel.ErrUnauthorized)
	}

	return dl.Store.WithTx(ctx, func(st travel.Store) error {
		days, err := st.ListDays(ctx, tripID)
		if err != nil {
			return err
		}
		known := make(map[travel.DayID]bool, len(days))
		for _, d := range days {
			known[d.ID] = true
		}

		for _, id := range dayIDs {
			if !known[id] {
				return &travel.UnknownDayError{TripID: tripID, DayID: id}
			}
		}
		for _, id := range dayIDs {
			if err := dl.Apply(ctx, st, id, exempt); err != nil {
				return err
			}
		}
		return st.MarkCompanyPending(ctx, trip.CompanyID)
	})
}

// parseAmount parses a caller-supplied money string into a 2-decimal amount.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a valid number: %w", s, travel.ErrValidation)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative: %w", s, travel.ErrValidation)
	}
	return d.Round(2), nil
}
