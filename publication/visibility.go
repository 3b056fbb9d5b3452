/*
visibility.go - Role-aware merged reads

PURPOSE:
  Composes what a viewer sees out of frozen snapshots and live records.
  Company and master viewers see published snapshots (latest per trip) plus
  live trips that were never published; employees always see their own live
  data, snapshots notwithstanding.

SNAPSHOT-WINS:
  When a trip has both a snapshot and newer live edits, company readers get
  the snapshot. The live edits surface only at the next publication. Each
  trip appears exactly once in a merged view.
*/
package publication

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// VIEW TYPES
// =============================================================================

// Expand selects which child collections to load into trip views.
type Expand struct {
	Days     bool
	Expenses bool
}

// TripView is one trip as a given viewer sees it. Published marks rows that
// come from a frozen snapshot rather than live data.
type TripView struct {
	TripID        travel.TripID
	EmployeeID    travel.EmployeeID
	CompanyID     travel.CompanyID
	Destination   string
	City          string
	Country       string
	International bool
	State         travel.TripState
	Start         time.Time
	End           time.Time
	DaysTraveled  int

	Published   bool
	PublishedAt *time.Time

	Days     []DayView
	Expenses []ExpenseView
}

type DayView struct {
	DayID    travel.DayID
	Date     time.Time
	Exempt   bool
	Reviewed bool
}

type ExpenseView struct {
	ExpenseID travel.ExpenseID
	DayID     travel.DayID
	Concept   string
	Amount    decimal.Decimal
	State     travel.ExpenseState
}

// CompanySummary aggregates the viewer-visible trips of one company.
// National/international counts split the same merged set, so frozen trips
// report the flag as captured at publication.
type CompanySummary struct {
	CompanyID          travel.CompanyID
	Trips              int
	PublishedTrips     int
	NationalTrips      int
	InternationalTrips int
	Days               int
	ExemptDays         int
	ApprovedTotal      decimal.Decimal
}

// =============================================================================
// MERGER
// =============================================================================

// Merger builds viewer-scoped reads over the store.
type Merger struct {
	Store travel.Store
}

// VisibleTrips returns the trips the viewer is entitled to see for the
// company, snapshot-wins for company-wide scopes, live for employee scope.
func (m *Merger) VisibleTrips(ctx context.Context, viewer travel.Role, company travel.CompanyID, expand Expand) ([]TripView, error) {
	if emp, ok := viewer.(travel.EmployeeScope); ok {
		return m.liveTripsForEmployee(ctx, emp.EmployeeID, expand)
	}
	if viewer != nil && !viewer.CanSeeCompany(company) {
		return nil, fmt.Errorf("viewing company %s: %w", company, travel.ErrUnauthorized)
	}
	return m.mergedTripsForCompany(ctx, company, expand)
}

func (m *Merger) liveTripsForEmployee(ctx context.Context, id travel.EmployeeID, expand Expand) ([]TripView, error) {
	trips, err := m.Store.ListTripsByEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	views := make([]TripView, 0, len(trips))
	for i := range trips {
		v, err := m.liveView(ctx, &trips[i], expand)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	sortViews(views)
	return views, nil
}

func (m *Merger) mergedTripsForCompany(ctx context.Context, company travel.CompanyID, expand Expand) ([]TripView, error) {
	snapshots, err := m.Store.ListLatestSnapshotsByCompany(ctx, company)
	if err != nil {
		return nil, err
	}
	trips, err := m.Store.ListTripsByCompany(ctx, company)
	if err != nil {
		return nil, err
	}

	snapshotted := make(map[travel.TripID]bool, len(snapshots))
	views := make([]TripView, 0, len(trips))

	for i := range snapshots {
		snapshotted[snapshots[i].TripID] = true
		views = append(views, snapshotView(&snapshots[i], expand))
	}
	for i := range trips {
		if snapshotted[trips[i].ID] {
			continue // snapshot wins; one row per trip
		}
		v, err := m.liveView(ctx, &trips[i], expand)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	sortViews(views)
	return views, nil
}

func (m *Merger) liveView(ctx context.Context, t *travel.Trip, expand Expand) (*TripView, error) {
	v := &TripView{
		TripID:        t.ID,
		EmployeeID:    t.EmployeeID,
		CompanyID:     t.CompanyID,
		Destination:   t.Destination,
		City:          t.City,
		Country:       t.Country,
		International: t.International,
		State:         t.State,
		Start:         t.Start,
		End:           t.End,
		DaysTraveled:  t.DaysTraveled,
	}
	if expand.Days {
		days, err := m.Store.ListDays(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			v.Days = append(v.Days, DayView{DayID: d.ID, Date: d.Date, Exempt: d.Exempt, Reviewed: d.Reviewed})
		}
	}
	if expand.Expenses {
		expenses, err := m.Store.ListExpensesByTrip(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range expenses {
			v.Expenses = append(v.Expenses, ExpenseView{ExpenseID: e.ID, DayID: e.DayID, Concept: e.Concept, Amount: e.Amount, State: e.State})
		}
	}
	return v, nil
}

func snapshotView(s *travel.TripSnapshot, expand Expand) TripView {
	taken := s.TakenAt
	v := TripView{
		TripID:        s.TripID,
		EmployeeID:    s.EmployeeID,
		CompanyID:     s.CompanyID,
		Destination:   s.Destination,
		City:          s.City,
		Country:       s.Country,
		International: s.International,
		State:         s.State,
		Start:         s.Start,
		End:           s.End,
		DaysTraveled:  s.DaysTraveled,
		Published:     true,
		PublishedAt:   &taken,
	}
	if expand.Days {
		for _, d := range s.Days {
			v.Days = append(v.Days, DayView{DayID: d.DayID, Date: d.Date, Exempt: d.Exempt, Reviewed: d.Reviewed})
		}
	}
	if expand.Expenses {
		for _, e := range s.Expenses {
			v.Expenses = append(v.Expenses, ExpenseView{ExpenseID: e.ExpenseID, DayID: e.DayID, Concept: e.Concept, Amount: e.Amount, State: e.State})
		}
	}
	return v
}

func sortViews(views []TripView) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].Start.Equal(views[j].Start) {
			return views[i].Start.Before(views[j].Start)
		}
		return views[i].TripID < views[j].TripID
	})
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary aggregates the viewer-visible trips of the company. Counts follow
// the same snapshot-wins composition as VisibleTrips, so no trip is counted
// twice and published totals do not drift under live edits.
func (m *Merger) Summary(ctx context.Context, viewer travel.Role, company travel.CompanyID) (*CompanySummary, error) {
	views, err := m.VisibleTrips(ctx, viewer, company, Expand{Days: true, Expenses: true})
	if err != nil {
		return nil, err
	}

	sum := &CompanySummary{CompanyID: company, ApprovedTotal: decimal.Zero}
	for i := range views {
		v := &views[i]
		sum.Trips++
		if v.Published {
			sum.PublishedTrips++
		}
		if v.International {
			sum.InternationalTrips++
		} else {
			sum.NationalTrips++
		}
		sum.Days += len(v.Days)
		for _, d := range v.Days {
			if d.Reviewed && d.Exempt {
				sum.ExemptDays++
			}
		}
		for _, e := range v.Expenses {
			if e.State == travel.ExpenseApproved {
				sum.ApprovedTotal = sum.ApprovedTotal.Add(e.Amount)
			}
		}
	}
	return sum, nil
}
