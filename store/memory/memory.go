/*
Package memory provides an in-memory implementation of travel.TxStore for
tests and local development.

TRANSACTIONS:
  WithTx is simulated with a full snapshot of the maps before fn runs and a
  restore on error. That makes rollback exact at the cost of copying, which
  is fine at test scale.
*/
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/travel-engine/travel"
)

// Memory is an in-memory travel.TxStore.
type Memory struct {
	mu sync.RWMutex
	tables
}

// tables holds the raw maps. Its methods are unlocked; Memory's exported
// methods take the lock, and the WithTx view reuses the unlocked methods
// under the lock Memory already holds.
type tables struct {
	companies map[travel.CompanyID]travel.Company
	employees map[travel.EmployeeID]travel.Employee
	trips     map[travel.TripID]travel.Trip
	days      map[travel.TripID][]travel.TravelDay
	expenses  map[travel.TripID][]travel.Expense
	snapshots map[travel.TripID][]travel.TripSnapshot
	notifs    []travel.Notification
}

func New() *Memory {
	return &Memory{tables: newTables()}
}

func newTables() tables {
	return tables{
		companies: make(map[travel.CompanyID]travel.Company),
		employees: make(map[travel.EmployeeID]travel.Employee),
		trips:     make(map[travel.TripID]travel.Trip),
		days:      make(map[travel.TripID][]travel.TravelDay),
		expenses:  make(map[travel.TripID][]travel.Expense),
		snapshots: make(map[travel.TripID][]travel.TripSnapshot),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against an unlocked view under the write lock, with a
// snapshot taken up front and restored on error.
func (m *Memory) WithTx(ctx context.Context, fn func(travel.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.tables.clone()
	if err := fn(&txView{t: &m.tables}); err != nil {
		m.tables = saved
		return err
	}
	return nil
}

func (t *tables) clone() tables {
	c := newTables()
	for k, v := range t.companies {
		c.companies[k] = v
	}
	for k, v := range t.employees {
		c.employees[k] = v
	}
	for k, v := range t.trips {
		c.trips[k] = v
	}
	for k, v := range t.days {
		c.days[k] = append([]travel.TravelDay{}, v...)
	}
	for k, v := range t.expenses {
		c.expenses[k] = append([]travel.Expense{}, v...)
	}
	for k, v := range t.snapshots {
		c.snapshots[k] = append([]travel.TripSnapshot{}, v...)
	}
	c.notifs = append([]travel.Notification{}, t.notifs...)
	return c
}

// txView adapts *tables to travel.Store without locking.
type txView struct {
	t *tables
}

// =============================================================================
// COMPANIES
// =============================================================================

func (t *tables) saveCompany(c travel.Company) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.companies[c.ID] = c
}

func (t *tables) getCompany(id travel.CompanyID) *travel.Company {
	c, ok := t.companies[id]
	if !ok {
		return nil
	}
	return &c
}

func (t *tables) listCompanies() []travel.Company {
	out := make([]travel.Company, 0, len(t.companies))
	for _, c := range t.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *tables) saveCompanySchedule(c *travel.Company) error {
	cur, ok := t.companies[c.ID]
	if !ok {
		return notFound("company", string(c.ID))
	}
	cur.Periodicity = c.Periodicity
	cur.NextReleaseAt = c.NextReleaseAt
	cur.LastReleaseAt = c.LastReleaseAt
	cur.HasPendingReviewChanges = c.HasPendingReviewChanges
	cur.ForceRelease = c.ForceRelease
	cur.ManualReleaseAt = c.ManualReleaseAt
	t.companies[c.ID] = cur
	return nil
}

func (t *tables) markCompanyPending(id travel.CompanyID) error {
	c, ok := t.companies[id]
	if !ok {
		return notFound("company", string(id))
	}
	c.HasPendingReviewChanges = true
	t.companies[id] = c
	return nil
}

func (m *Memory) SaveCompany(_ context.Context, c travel.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCompany(c)
	return nil
}

func (m *Memory) GetCompany(_ context.Context, id travel.CompanyID) (*travel.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCompany(id), nil
}

func (m *Memory) ListCompanies(_ context.Context) ([]travel.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCompanies(), nil
}

func (m *Memory) SaveCompanySchedule(_ context.Context, c *travel.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCompanySchedule(c)
}

func (m *Memory) MarkCompanyPending(_ context.Context, id travel.CompanyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markCompanyPending(id)
}

func (v *txView) SaveCompany(_ context.Context, c travel.Company) error {
	v.t.saveCompany(c)
	return nil
}
func (v *txView) GetCompany(_ context.Context, id travel.CompanyID) (*travel.Company, error) {
	return v.t.getCompany(id), nil
}
func (v *txView) ListCompanies(_ context.Context) ([]travel.Company, error) {
	return v.t.listCompanies(), nil
}
func (v *txView) SaveCompanySchedule(_ context.Context, c *travel.Company) error {
	return v.t.saveCompanySchedule(c)
}
func (v *txView) MarkCompanyPending(_ context.Context, id travel.CompanyID) error {
	return v.t.markCompanyPending(id)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (t *tables) saveEmployee(e travel.Employee) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	t.employees[e.ID] = e
}

func (t *tables) getEmployee(id travel.EmployeeID) *travel.Employee {
	e, ok := t.employees[id]
	if !ok {
		return nil
	}
	return &e
}

func (m *Memory) SaveEmployee(_ context.Context, e travel.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveEmployee(e)
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id travel.EmployeeID) (*travel.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployee(id), nil
}

func (v *txView) SaveEmployee(_ context.Context, e travel.Employee) error {
	v.t.saveEmployee(e)
	return nil
}
func (v *txView) GetEmployee(_ context.Context, id travel.EmployeeID) (*travel.Employee, error) {
	return v.t.getEmployee(id), nil
}

// =============================================================================
// TRIPS
// =============================================================================

func (t *tables) insertTrip(tr travel.Trip) error {
	if _, ok := t.trips[tr.ID]; ok {
		return conflict("trip", string(tr.ID))
	}
	t.trips[tr.ID] = tr
	return nil
}

func (t *tables) getTrip(id travel.TripID) *travel.Trip {
	tr, ok := t.trips[id]
	if !ok {
		return nil
	}
	return &tr
}

func (t *tables) updateTripState(id travel.TripID, state travel.TripState, at time.Time) error {
	tr, ok := t.trips[id]
	if !ok {
		return notFound("trip", string(id))
	}
	tr.State = state
	tr.UpdatedAt = at
	t.trips[id] = tr
	return nil
}

func (t *tables) listTripsByEmployee(id travel.EmployeeID) []travel.Trip {
	var out []travel.Trip
	for _, tr := range t.trips {
		if tr.EmployeeID == id {
			out = append(out, tr)
		}
	}
	sortTrips(out)
	return out
}

func (t *tables) listTripsByCompany(id travel.CompanyID, states []travel.TripState) []travel.Trip {
	var out []travel.Trip
	for _, tr := range t.trips {
		if tr.CompanyID != id {
			continue
		}
		if len(states) > 0 && !stateIn(tr.State, states) {
			continue
		}
		out = append(out, tr)
	}
	sortTrips(out)
	return out
}

func (t *tables) hasOverlappingTrip(id travel.EmployeeID, start, end time.Time, states []travel.TripState) bool {
	for _, tr := range t.trips {
		if tr.EmployeeID != id {
			continue
		}
		if len(states) > 0 && !stateIn(tr.State, states) {
			continue
		}
		if !tr.Start.After(end) && !tr.End.Before(start) {
			return true
		}
	}
	return false
}

func (m *Memory) InsertTrip(_ context.Context, tr travel.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTrip(tr)
}

func (m *Memory) GetTrip(_ context.Context, id travel.TripID) (*travel.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTrip(id), nil
}

func (m *Memory) UpdateTripState(_ context.Context, id travel.TripID, state travel.TripState, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTripState(id, state, at)
}

func (m *Memory) ListTripsByEmployee(_ context.Context, id travel.EmployeeID) ([]travel.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTripsByEmployee(id), nil
}

func (m *Memory) ListTripsByCompany(_ context.Context, id travel.CompanyID, states ...travel.TripState) ([]travel.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTripsByCompany(id, states), nil
}

func (m *Memory) HasOverlappingTrip(_ context.Context, id travel.EmployeeID, start, end time.Time, states ...travel.TripState) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasOverlappingTrip(id, start, end, states), nil
}

func (v *txView) InsertTrip(_ context.Context, tr travel.Trip) error {
	return v.t.insertTrip(tr)
}
func (v *txView) GetTrip(_ context.Context, id travel.TripID) (*travel.Trip, error) {
	return v.t.getTrip(id), nil
}
func (v *txView) UpdateTripState(_ context.Context, id travel.TripID, state travel.TripState, at time.Time) error {
	return v.t.updateTripState(id, state, at)
}
func (v *txView) ListTripsByEmployee(_ context.Context, id travel.EmployeeID) ([]travel.Trip, error) {
	return v.t.listTripsByEmployee(id), nil
}
func (v *txView) ListTripsByCompany(_ context.Context, id travel.CompanyID, states ...travel.TripState) ([]travel.Trip, error) {
	return v.t.listTripsByCompany(id, states), nil
}
func (v *txView) HasOverlappingTrip(_ context.Context, id travel.EmployeeID, start, end time.Time, states ...travel.TripState) (bool, error) {
	return v.t.hasOverlappingTrip(id, start, end, states), nil
}

// =============================================================================
// TRAVEL DAYS
// =============================================================================

func (t *tables) upsertDay(d travel.TravelDay) {
	days := t.days[d.TripID]
	for _, existing := range days {
		if travel.SameDay(existing.Date, d.Date) {
			return // existing rows stay untouched
		}
	}
	days = append(days, d)
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	t.days[d.TripID] = days
}

func (t *tables) listDays(id travel.TripID) []travel.TravelDay {
	return append([]travel.TravelDay{}, t.days[id]...)
}

func (t *tables) setDayReview(id travel.DayID, exempt, reviewed bool) error {
	for trip, days := range t.days {
		for i := range days {
			if days[i].ID == id {
				days[i].Exempt = exempt
				days[i].Reviewed = reviewed
				t.days[trip] = days
				return nil
			}
		}
	}
	return notFound("travel day", string(id))
}

func (t *tables) resetDayReviews(id travel.TripID) {
	days := t.days[id]
	for i := range days {
		days[i].Reviewed = false
	}
	t.days[id] = days
}

func (t *tables) countExemptDays(id travel.EmployeeID, from, to time.Time) int {
	count := 0
	for trip, days := range t.days {
		tr, ok := t.trips[trip]
		if !ok || tr.EmployeeID != id {
			continue
		}
		for _, d := range days {
			if d.Reviewed && d.Exempt && !d.Date.Before(from) && !d.Date.After(to) {
				count++
			}
		}
	}
	return count
}

func (m *Memory) UpsertDay(_ context.Context, d travel.TravelDay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertDay(d)
	return nil
}

func (m *Memory) ListDays(_ context.Context, id travel.TripID) ([]travel.TravelDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listDays(id), nil
}

func (m *Memory) SetDayReview(_ context.Context, id travel.DayID, exempt, reviewed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setDayReview(id, exempt, reviewed)
}

func (m *Memory) ResetDayReviews(_ context.Context, id travel.TripID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayReviews(id)
	return nil
}

func (m *Memory) CountExemptDays(_ context.Context, id travel.EmployeeID, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countExemptDays(id, from, to), nil
}

func (v *txView) UpsertDay(_ context.Context, d travel.TravelDay) error {
	v.t.upsertDay(d)
	return nil
}
func (v *txView) ListDays(_ context.Context, id travel.TripID) ([]travel.TravelDay, error) {
	return v.t.listDays(id), nil
}
func (v *txView) SetDayReview(_ context.Context, id travel.DayID, exempt, reviewed bool) error {
	return v.t.setDayReview(id, exempt, reviewed)
}
func (v *txView) ResetDayReviews(_ context.Context, id travel.TripID) error {
	v.t.resetDayReviews(id)
	return nil
}
func (v *txView) CountExemptDays(_ context.Context, id travel.EmployeeID, from, to time.Time) (int, error) {
	return v.t.countExemptDays(id, from, to), nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func (t *tables) insertExpense(e travel.Expense) {
	t.expenses[e.TripID] = append(t.expenses[e.TripID], e)
}

func (t *tables) listExpensesByTrip(id travel.TripID) []travel.Expense {
	return append([]travel.Expense{}, t.expenses[id]...)
}

func (t *tables) listExpensesByDay(id travel.DayID) []travel.Expense {
	var out []travel.Expense
	for _, list := range t.expenses {
		for _, e := range list {
			if e.DayID == id {
				out = append(out, e)
			}
		}
	}
	return out
}

func (t *tables) setExpenseStateByDay(id travel.DayID, state travel.ExpenseState) {
	for trip, list := range t.expenses {
		changed := false
		for i := range list {
			if list[i].DayID == id {
				list[i].State = state
				changed = true
			}
		}
		if changed {
			t.expenses[trip] = list
		}
	}
}

func (t *tables) resetExpenseStates(id travel.TripID) {
	list := t.expenses[id]
	for i := range list {
		list[i].State = travel.ExpensePending
	}
	t.expenses[id] = list
}

func (m *Memory) InsertExpense(_ context.Context, e travel.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertExpense(e)
	return nil
}

func (m *Memory) ListExpensesByTrip(_ context.Context, id travel.TripID) ([]travel.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesByTrip(id), nil
}

func (m *Memory) ListExpensesByDay(_ context.Context, id travel.DayID) ([]travel.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesByDay(id), nil
}

func (m *Memory) SetExpenseStateByDay(_ context.Context, id travel.DayID, state travel.ExpenseState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setExpenseStateByDay(id, state)
	return nil
}

func (m *Memory) ResetExpenseStates(_ context.Context, id travel.TripID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetExpenseStates(id)
	return nil
}

func (v *txView) InsertExpense(_ context.Context, e travel.Expense) error {
	v.t.insertExpense(e)
	return nil
}
func (v *txView) ListExpensesByTrip(_ context.Context, id travel.TripID) ([]travel.Expense, error) {
	return v.t.listExpensesByTrip(id), nil
}
func (v *txView) ListExpensesByDay(_ context.Context, id travel.DayID) ([]travel.Expense, error) {
	return v.t.listExpensesByDay(id), nil
}
func (v *txView) SetExpenseStateByDay(_ context.Context, id travel.DayID, state travel.ExpenseState) error {
	v.t.setExpenseStateByDay(id, state)
	return nil
}
func (v *txView) ResetExpenseStates(_ context.Context, id travel.TripID) error {
	v.t.resetExpenseStates(id)
	return nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (t *tables) insertTripSnapshot(s travel.TripSnapshot) {
	t.snapshots[s.TripID] = append(t.snapshots[s.TripID], s)
}

func (t *tables) latestSnapshotByTrip(id travel.TripID) *travel.TripSnapshot {
	list := t.snapshots[id]
	if len(list) == 0 {
		return nil
	}
	best := list[0]
	for _, s := range list[1:] {
		if s.TakenAt.After(best.TakenAt) {
			best = s
		}
	}
	return &best
}

func (t *tables) listLatestSnapshotsByCompany(id travel.CompanyID) []travel.TripSnapshot {
	var out []travel.TripSnapshot
	for trip, list := range t.snapshots {
		if len(list) == 0 || list[0].CompanyID != id {
			continue
		}
		out = append(out, *t.latestSnapshotByTrip(trip))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].TripID < out[j].TripID
	})
	return out
}

func (m *Memory) InsertTripSnapshot(_ context.Context, s travel.TripSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertTripSnapshot(s)
	return nil
}

func (m *Memory) LatestSnapshotByTrip(_ context.Context, id travel.TripID) (*travel.TripSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestSnapshotByTrip(id), nil
}

func (m *Memory) ListLatestSnapshotsByCompany(_ context.Context, id travel.CompanyID) ([]travel.TripSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLatestSnapshotsByCompany(id), nil
}

func (v *txView) InsertTripSnapshot(_ context.Context, s travel.TripSnapshot) error {
	v.t.insertTripSnapshot(s)
	return nil
}
func (v *txView) LatestSnapshotByTrip(_ context.Context, id travel.TripID) (*travel.TripSnapshot, error) {
	return v.t.latestSnapshotByTrip(id), nil
}
func (v *txView) ListLatestSnapshotsByCompany(_ context.Context, id travel.CompanyID) ([]travel.TripSnapshot, error) {
	return v.t.listLatestSnapshotsByCompany(id), nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (t *tables) insertNotification(n travel.Notification) {
	t.notifs = append(t.notifs, n)
}

func (t *tables) listNotifications(id travel.UserID) []travel.Notification {
	var out []travel.Notification
	for _, n := range t.notifs {
		if n.UserID == id {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (t *tables) findUnreadNotification(id travel.UserID, typ travel.NotificationType) *travel.Notification {
	for i := len(t.notifs) - 1; i >= 0; i-- {
		n := t.notifs[i]
		if n.UserID == id && n.Type == typ && !n.Read {
			return &n
		}
	}
	return nil
}

func (t *tables) updateNotificationMessage(id string, message string, at time.Time) error {
	for i := range t.notifs {
		if t.notifs[i].ID == id {
			t.notifs[i].Message = message
			t.notifs[i].CreatedAt = at
			return nil
		}
	}
	return notFound("notification", id)
}

func (m *Memory) InsertNotification(_ context.Context, n travel.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertNotification(n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, id travel.UserID) ([]travel.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listNotifications(id), nil
}

func (m *Memory) FindUnreadNotification(_ context.Context, id travel.UserID, typ travel.NotificationType) (*travel.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findUnreadNotification(id, typ), nil
}

func (m *Memory) UpdateNotificationMessage(_ context.Context, id string, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateNotificationMessage(id, message, at)
}

func (v *txView) InsertNotification(_ context.Context, n travel.Notification) error {
	v.t.insertNotification(n)
	return nil
}
func (v *txView) ListNotifications(_ context.Context, id travel.UserID) ([]travel.Notification, error) {
	return v.t.listNotifications(id), nil
}
func (v *txView) FindUnreadNotification(_ context.Context, id travel.UserID, typ travel.NotificationType) (*travel.Notification, error) {
	return v.t.findUnreadNotification(id, typ), nil
}
func (v *txView) UpdateNotificationMessage(_ context.Context, id string, message string, at time.Time) error {
	return v.t.updateNotificationMessage(id, message, at)
}

// =============================================================================
// HELPERS
// =============================================================================

func sortTrips(trips []travel.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if !trips[i].Start.Equal(trips[j].Start) {
			return trips[i].Start.Before(trips[j].Start)
		}
		return trips[i].ID < trips[j].ID
	})
}

func stateIn(s travel.TripState, states []travel.TripState) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}

func notFound(kind, id string) error {
	return &entityError{kind: kind, id: id, sentinel: travel.ErrNotFound}
}

func conflict(kind, id string) error {
	return &entityError{kind: kind, id: id, sentinel: travel.ErrStateConflict}
}

type entityError struct {
	kind     string
	id       string
	sentinel error
}

func (e *entityError) Error() string { return e.kind + " " + e.id + ": " + e.sentinel.Error() }
func (e *entityError) Unwrap() error { return e.sentinel }
