/*
Package publication freezes reviewed trip data on a per-company schedule and
serves role-aware merged views of snapshots and live records.

PURPOSE:
  A company's reviewed data is only released at periodic publication
  boundaries. At each boundary the engine writes immutable snapshots of the
  reviewed trips that changed since the last release; company readers then
  see those frozen images merged with live trips that were never published.

FILES:
  - snapshot.go:   SnapshotWriter, the batch freeze step of a publication
  - scheduler.go:  Scheduler, the lazy + periodic publication driver
  - visibility.go: Merger, snapshot-wins read composition per viewer role

RE-FREEZE RULE:
  A reviewed trip is snapshotted when it has no snapshot yet, or when it was
  updated after its latest snapshot was taken. Snapshots themselves are never
  modified; a newer image supersedes an older one at read time.
*/
package publication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// SNAPSHOT WRITER
// =============================================================================

// SnapshotWriter freezes reviewed trips into immutable snapshot rows. NewID
// is overridable for deterministic tests.
type SnapshotWriter struct {
	NewID func() string
}

func NewSnapshotWriter() *SnapshotWriter {
	return &SnapshotWriter{NewID: uuid.NewString}
}

func (w *SnapshotWriter) newID() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.NewString()
}

// WriteBatch snapshots every reviewed trip of the company that changed since
// its latest snapshot. It runs against the store it is handed (usually a
// transaction view) and returns the number of snapshots written.
func (w *SnapshotWriter) WriteBatch(ctx context.Context, st travel.Store, company travel.CompanyID, now time.Time) (int, error) {
	trips, err := st.ListTripsByCompany(ctx, company, travel.TripReviewed)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range trips {
		trip := &trips[i]

		latest, err := st.LatestSnapshotByTrip(ctx, trip.ID)
		if err != nil {
			return written, err
		}
		if latest != nil && !trip.UpdatedAt.After(latest.TakenAt) {
			continue // unchanged since the last freeze
		}

		snap, err := w.build(ctx, st, trip, now)
		if err != nil {
			return written, err
		}
		if err := st.InsertTripSnapshot(ctx, *snap); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// build assembles the full frozen image of one trip: header, days, expenses.
func (w *SnapshotWriter) build(ctx context.Context, st travel.Store, trip *travel.Trip, now time.Time) (*travel.TripSnapshot, error) {
	snap := &travel.TripSnapshot{
		ID:            w.newID(),
		TripID:        trip.ID,
		CompanyID:     trip.CompanyID,
		EmployeeID:    trip.EmployeeID,
		Destination:   trip.Destination,
		City:          trip.City,
		Country:       trip.Country,
		International: trip.International,
		State:         trip.State,
		Start:         trip.Start,
		End:           trip.End,
		DaysTraveled:  trip.DaysTraveled,
		TakenAt:       now,
	}

	days, err := st.ListDays(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		snap.Days = append(snap.Days, travel.DaySnapshot{
			ID:         w.newID(),
			SnapshotID: snap.ID,
			DayID:      d.ID,
			Date:       d.Date,
			Exempt:     d.Exempt,
			Reviewed:   d.Reviewed,
		})
	}

	expenses, err := st.ListExpensesByTrip(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		snap.Expenses = append(snap.Expenses, travel.ExpenseSnapshot{
			ID:         w.newID(),
			SnapshotID: snap.ID,
			ExpenseID:  e.ID,
			DayID:      e.DayID,
			Concept:    e.Concept,
			Amount:     e.Amount,
			State:      e.State,
		})
	}

	return snap, nil
}
