/*
Package sqlite provides the SQLite-backed implementation of travel.TxStore.

PURPOSE:
  Implements the full persistence contract (companies, employees, trips,
  travel days, expenses, snapshots, notifications) on SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

IMMUTABILITY ENFORCEMENT:
  The snapshot tables are insert-only:
  - No UPDATE statements on trip_snapshots/day_snapshots/expense_snapshots
  - No DELETE statements on those tables
  - A newer snapshot supersedes an older one at read time (taken_at DESC)

KEY TABLES:
  companies:         Publication schedule owner
  employees:         Trip owners, carry the salary for exemption math
  trips:             Reviewable travel records
  travel_days:       One row per (trip, date), unique
  expenses:          Cost items, optionally pinned to a day
  trip_snapshots:    Frozen trip images, with day/expense children
  notifications:     User-facing messages (deadline upserts)

DATES AND TIMES:
  Timestamps are stored as RFC3339 strings; day-granular dates as YYYY-MM-DD.
  Lexicographic order matches chronological order for both, so range queries
  use plain string comparison.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) plus foreign keys on. The
  pool is capped at one connection so the serialized writer model holds.

USAGE:
  store, err := sqlite.New("./data/travel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - travel/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/travel-engine/travel"
)

// Store implements travel.TxStore on SQLite.
type Store struct {
	db *sql.DB
	queries
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database (tests).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes
	// the writer, which is all SQLite gives us anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, queries: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Companies (publication schedule owners)
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		periodicity TEXT NOT NULL DEFAULT 'quarterly',
		next_release_at TEXT,
		last_release_at TEXT,
		has_pending_review_changes BOOLEAN NOT NULL DEFAULT FALSE,
		force_release BOOLEAN NOT NULL DEFAULT FALSE,
		manual_release_at TEXT,
		created_at TEXT NOT NULL
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id),
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		salary TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_company
		ON employees(company_id);

	-- Trips
	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		company_id TEXT NOT NULL REFERENCES companies(id),
		destination TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		international BOOLEAN NOT NULL DEFAULT FALSE,
		visited_company TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_traveled INTEGER NOT NULL,
		state TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trips_employee
		ON trips(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_trips_company_state
		ON trips(company_id, state);

	-- Travel days: one row per (trip, date), day granular
	CREATE TABLE IF NOT EXISTS travel_days (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL REFERENCES trips(id),
		date TEXT NOT NULL,
		exempt BOOLEAN NOT NULL DEFAULT TRUE,
		reviewed BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE(trip_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_travel_days_trip
		ON travel_days(trip_id, date);

	-- Expenses
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		company_id TEXT NOT NULL REFERENCES companies(id),
		trip_id TEXT NOT NULL REFERENCES trips(id),
		day_id TEXT,
		concept TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		state TEXT NOT NULL,
		receipt_name TEXT NOT NULL DEFAULT '',
		expense_date TEXT NOT NULL,
		requested_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_trip
		ON expenses(trip_id);
	CREATE INDEX IF NOT EXISTS idx_expenses_day
		ON expenses(day_id) WHERE day_id IS NOT NULL;

	-- Trip snapshots (insert-only)
	CREATE TABLE IF NOT EXISTS trip_snapshots (
		id TEXT PRIMARY KEY,
		trip_id TEXT NOT NULL REFERENCES trips(id),
		company_id TEXT NOT NULL REFERENCES companies(id),
		employee_id TEXT NOT NULL REFERENCES employees(id),
		destination TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		international BOOLEAN NOT NULL DEFAULT FALSE,
		state TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_traveled INTEGER NOT NULL,
		taken_at TEXT NOT NULL
	);

	-- Hot path: latest snapshot per trip / per company
	CREATE INDEX IF NOT EXISTS idx_trip_snapshots_trip_taken
		ON trip_snapshots(trip_id, taken_at DESC);
	CREATE INDEX IF NOT EXISTS idx_trip_snapshots_company
		ON trip_snapshots(company_id, taken_at DESC);

	CREATE TABLE IF NOT EXISTS day_snapshots (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES trip_snapshots(id),
		day_id TEXT NOT NULL,
		date TEXT NOT NULL,
		exempt BOOLEAN NOT NULL,
		reviewed BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_day_snapshots_snapshot
		ON day_snapshots(snapshot_id, date);

	CREATE TABLE IF NOT EXISTS expense_snapshots (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES trip_snapshots(id),
		expense_id TEXT NOT NULL,
		day_id TEXT,
		concept TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		state TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expense_snapshots_snapshot
		ON expense_snapshots(snapshot_id);

	-- Notifications
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_notifications_unread_type
		ON notifications(user_id, type) WHERE read = FALSE;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (travel.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Errors roll back.
func (s *Store) WithTx(ctx context.Context, fn func(travel.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// dbtx is the subset of *sql.DB and *sql.Tx the queries need, so the same
// method set serves both the root store and transaction views.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements travel.Store against a dbtx.
type queries struct {
	db dbtx
}

// =============================================================================
// COMPANIES
// =============================================================================

const companyColumns = `id, name, user_id, periodicity, next_release_at, last_release_at,
	has_pending_review_changes, force_release, manual_release_at, created_at`

// SaveCompany inserts or updates the full company row. Used by provisioning
// and fixtures; the scheduler uses SaveCompanySchedule.
func (q *queries) SaveCompany(ctx context.Context, c travel.Company) error {
	query := `
		INSERT INTO companies (` + companyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			user_id = excluded.user_id,
			periodicity = excluded.periodicity,
			next_release_at = excluded.next_release_at,
			last_release_at = excluded.last_release_at,
			has_pending_review_changes = excluded.has_pending_review_changes,
			force_release = excluded.force_release,
			manual_release_at = excluded.manual_release_at
	`
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, query,
		c.ID, c.Name, c.UserID, c.Periodicity,
		nullTime(c.NextReleaseAt), nullTime(c.LastReleaseAt),
		c.HasPendingReviewChanges, c.ForceRelease, nullTime(c.ManualReleaseAt),
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (q *queries) GetCompany(ctx context.Context, id travel.CompanyID) (*travel.Company, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
	c, err := scanCompany(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (q *queries) ListCompanies(ctx context.Context) ([]travel.Company, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []travel.Company
	for rows.Next() {
		c, err := scanCompany(rows.Scan)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

func scanCompany(scan func(...any) error) (*travel.Company, error) {
	var c travel.Company
	var next, last, manual sql.NullString
	var createdAt string

	err := scan(&c.ID, &c.Name, &c.UserID, &c.Periodicity, &next, &last,
		&c.HasPendingReviewChanges, &c.ForceRelease, &manual, &createdAt)
	if err != nil {
		return nil, err
	}

	c.NextReleaseAt = parseNullTime(next)
	c.LastReleaseAt = parseNullTime(last)
	c.ManualReleaseAt = parseNullTime(manual)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (q *queries) SaveCompanySchedule(ctx context.Context, c *travel.Company) error {
	query := `
		UPDATE companies SET
			periodicity = ?,
			next_release_at = ?,
			last_release_at = ?,
			has_pending_review_changes = ?,
			force_release = ?,
			manual_release_at = ?
		WHERE id = ?
	`
	res, err := q.db.ExecContext(ctx, query,
		c.Periodicity,
		nullTime(c.NextReleaseAt), nullTime(c.LastReleaseAt),
		c.HasPendingReviewChanges, c.ForceRelease, nullTime(c.ManualReleaseAt),
		c.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("company %s", c.ID))
}

func (q *queries) MarkCompanyPending(ctx context.Context, id travel.CompanyID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE companies SET has_pending_review_changes = TRUE WHERE id = ?`, id)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee inserts or updates an employee.
func (q *queries) SaveEmployee(ctx context.Context, e travel.Employee) error {
	query := `
		INSERT INTO employees (id, company_id, user_id, name, salary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			user_id = excluded.user_id,
			name = excluded.name,
			salary = excluded.salary
	`
	var salary *string
	if e.Salary != nil {
		s := e.Salary.String()
		salary = &s
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, query,
		e.ID, e.CompanyID, e.UserID, e.Name, salary,
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (q *queries) GetEmployee(ctx context.Context, id travel.EmployeeID) (*travel.Employee, error) {
	var e travel.Employee
	var salary sql.NullString
	var createdAt string

	err := q.db.QueryRowContext(ctx,
		`SELECT id, company_id, user_id, name, salary, created_at FROM employees WHERE id = ?`,
		id,
	).Scan(&e.ID, &e.CompanyID, &e.UserID, &e.Name, &salary, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if salary.Valid {
		d, err := decimal.NewFromString(salary.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt salary for employee %s: %w", id, err)
		}
		e.Salary = &d
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// =============================================================================
// TRIPS
// =============================================================================

const tripColumns = `id, employee_id, company_id, destination, city, country,
	international, visited_company, reason, start_date, end_date, days_traveled,
	state, requested_at, updated_at`

func (q *queries) InsertTrip(ctx context.Context, t travel.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		t.ID, t.EmployeeID, t.CompanyID, t.Destination, t.City, t.Country,
		t.International, t.VisitedCompany, t.Reason,
		dateStr(t.Start), dateStr(t.End), t.DaysTraveled,
		t.State, t.RequestedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

func (q *queries) GetTrip(ctx context.Context, id travel.TripID) (*travel.Trip, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
	t, err := scanTrip(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (q *queries) UpdateTripState(ctx context.Context, id travel.TripID, state travel.TripState, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE trips SET state = ?, updated_at = ? WHERE id = ?`,
		state, at.Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("trip %s", id))
}

func (q *queries) ListTripsByEmployee(ctx context.Context, id travel.EmployeeID) ([]travel.Trip, error) {
	return q.queryTrips(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE employee_id = ? ORDER BY start_date ASC`, id)
}

func (q *queries) ListTripsByCompany(ctx context.Context, id travel.CompanyID, states ...travel.TripState) ([]travel.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE company_id = ?`
	args := []any{id}
	if len(states) > 0 {
		query += ` AND state IN (` + placeholders(len(states)) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_date ASC`
	return q.queryTrips(ctx, query, args...)
}

func (q *queries) HasOverlappingTrip(ctx context.Context, id travel.EmployeeID, start, end time.Time, states ...travel.TripState) (bool, error) {
	query := `
		SELECT COUNT(*) FROM trips
		WHERE employee_id = ? AND start_date <= ? AND end_date >= ?
	`
	args := []any{id, dateStr(end), dateStr(start)}
	if len(states) > 0 {
		query += ` AND state IN (` + placeholders(len(states)) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}

	var count int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *queries) queryTrips(ctx context.Context, query string, args ...any) ([]travel.Trip, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var trips []travel.Trip
	for rows.Next() {
		t, err := scanTrip(rows.Scan)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

func scanTrip(scan func(...any) error) (*travel.Trip, error) {
	var t travel.Trip
	var start, end, requestedAt, updatedAt string

	err := scan(&t.ID, &t.EmployeeID, &t.CompanyID, &t.Destination, &t.City,
		&t.Country, &t.International, &t.VisitedCompany, &t.Reason,
		&start, &end, &t.DaysTraveled, &t.State, &requestedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Start, _ = time.Parse("2006-01-02", start)
	t.End, _ = time.Parse("2006-01-02", end)
	t.RequestedAt, _ = time.Parse(time.RFC3339, requestedAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &t, nil
}

// =============================================================================
// TRAVEL DAYS
// =============================================================================

func (q *queries) UpsertDay(ctx context.Context, d travel.TravelDay) error {
	// Existing (trip, date) rows are left untouched so re-running a day
	// reconciliation never clears review flags.
	query := `
		INSERT INTO travel_days (id, trip_id, date, exempt, reviewed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(trip_id, date) DO NOTHING
	`
	_, err := q.db.ExecContext(ctx, query, d.ID, d.TripID, dateStr(d.Date), d.Exempt, d.Reviewed)
	return err
}

func (q *queries) ListDays(ctx context.Context, id travel.TripID) ([]travel.TravelDay, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, trip_id, date, exempt, reviewed FROM travel_days WHERE trip_id = ? ORDER BY date ASC`,
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []travel.TravelDay
	for rows.Next() {
		var d travel.TravelDay
		var date string
		if err := rows.Scan(&d.ID, &d.TripID, &date, &d.Exempt, &d.Reviewed); err != nil {
			return nil, err
		}
		d.Date, _ = time.Parse("2006-01-02", date)
		days = append(days, d)
	}
	return days, rows.Err()
}

func (q *queries) SetDayReview(ctx context.Context, id travel.DayID, exempt, reviewed bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE travel_days SET exempt = ?, reviewed = ? WHERE id = ?`,
		exempt, reviewed, id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("travel day %s", id))
}

func (q *queries) ResetDayReviews(ctx context.Context, id travel.TripID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE travel_days SET reviewed = FALSE WHERE trip_id = ?`, id)
	return err
}

func (q *queries) CountExemptDays(ctx context.Context, id travel.EmployeeID, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM travel_days d
		JOIN trips t ON t.id = d.trip_id
		WHERE t.employee_id = ?
		  AND d.reviewed = TRUE AND d.exempt = TRUE
		  AND d.date >= ? AND d.date <= ?
	`
	var count int
	err := q.db.QueryRowContext(ctx, query, id, dateStr(from), dateStr(to)).Scan(&count)
	return count, err
}

// =============================================================================
// EXPENSES
// =============================================================================

const expenseColumns = `id, employee_id, company_id, trip_id, day_id, concept,
	amount, state, receipt_name, expense_date, requested_at`

func (q *queries) InsertExpense(ctx context.Context, e travel.Expense) error {
	query := `
		INSERT INTO expenses (` + expenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		e.ID, e.EmployeeID, e.CompanyID, e.TripID, nullID(string(e.DayID)),
		e.Concept, e.Amount.String(), e.State, e.ReceiptName,
		dateStr(e.ExpenseDate), e.RequestedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}

func (q *queries) ListExpensesByTrip(ctx context.Context, id travel.TripID) ([]travel.Expense, error) {
	return q.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE trip_id = ? ORDER BY expense_date ASC, id ASC`, id)
}

func (q *queries) ListExpensesByDay(ctx context.Context, id travel.DayID) ([]travel.Expense, error) {
	return q.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE day_id = ? ORDER BY expense_date ASC, id ASC`, id)
}

func (q *queries) SetExpenseStateByDay(ctx context.Context, id travel.DayID, state travel.ExpenseState) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET state = ? WHERE day_id = ?`, state, id)
	return err
}

func (q *queries) ResetExpenseStates(ctx context.Context, id travel.TripID) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET state = ? WHERE trip_id = ? AND state != ?`,
		travel.ExpensePending, id, travel.ExpensePending)
	return err
}

func (q *queries) queryExpenses(ctx context.Context, query string, args ...any) ([]travel.Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []travel.Expense
	for rows.Next() {
		var e travel.Expense
		var dayID sql.NullString
		var amount, expenseDate, requestedAt string
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.CompanyID, &e.TripID, &dayID,
			&e.Concept, &amount, &e.State, &e.ReceiptName, &expenseDate, &requestedAt); err != nil {
			return nil, err
		}
		e.DayID = travel.DayID(dayID.String)
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for expense %s: %w", e.ID, err)
		}
		e.ExpenseDate, _ = time.Parse("2006-01-02", expenseDate)
		e.RequestedAt, _ = time.Parse(time.RFC3339, requestedAt)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// =============================================================================
// SNAPSHOTS (insert-only)
// =============================================================================

func (q *queries) InsertTripSnapshot(ctx context.Context, s travel.TripSnapshot) error {
	query := `
		INSERT INTO trip_snapshots (id, trip_id, company_id, employee_id, destination,
			city, country, international, state, start_date, end_date, days_traveled, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		s.ID, s.TripID, s.CompanyID, s.EmployeeID, s.Destination,
		s.City, s.Country, s.International, s.State, dateStr(s.Start), dateStr(s.End),
		s.DaysTraveled, s.TakenAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for _, d := range s.Days {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO day_snapshots (id, snapshot_id, day_id, date, exempt, reviewed)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, s.ID, d.DayID, dateStr(d.Date), d.Exempt, d.Reviewed)
		if err != nil {
			return fmt.Errorf("failed to insert day snapshot: %w", err)
		}
	}
	for _, e := range s.Expenses {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO expense_snapshots (id, snapshot_id, expense_id, day_id, concept, amount, state)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, s.ID, e.ExpenseID, nullID(string(e.DayID)), e.Concept, e.Amount.String(), e.State)
		if err != nil {
			return fmt.Errorf("failed to insert expense snapshot: %w", err)
		}
	}
	return nil
}

const snapshotColumns = `id, trip_id, company_id, employee_id, destination, city,
	country, international, state, start_date, end_date, days_traveled, taken_at`

func (q *queries) LatestSnapshotByTrip(ctx context.Context, id travel.TripID) (*travel.TripSnapshot, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM trip_snapshots
		 WHERE trip_id = ? ORDER BY taken_at DESC, id DESC LIMIT 1`, id)
	s, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := q.loadSnapshotChildren(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (q *queries) ListLatestSnapshotsByCompany(ctx context.Context, id travel.CompanyID) ([]travel.TripSnapshot, error) {
	// Latest per trip: no other snapshot of the same trip is newer.
	query := `
		SELECT ` + snapshotColumns + ` FROM trip_snapshots s
		WHERE s.company_id = ?
		  AND s.taken_at = (
			SELECT MAX(s2.taken_at) FROM trip_snapshots s2 WHERE s2.trip_id = s.trip_id
		  )
		ORDER BY s.start_date ASC, s.trip_id ASC
	`
	rows, err := q.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []travel.TripSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snaps {
		if err := q.loadSnapshotChildren(ctx, &snaps[i]); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

func scanSnapshot(scan func(...any) error) (*travel.TripSnapshot, error) {
	var s travel.TripSnapshot
	var start, end, takenAt string

	err := scan(&s.ID, &s.TripID, &s.CompanyID, &s.EmployeeID, &s.Destination,
		&s.City, &s.Country, &s.International, &s.State, &start, &end, &s.DaysTraveled, &takenAt)
	if err != nil {
		return nil, err
	}

	s.Start, _ = time.Parse("2006-01-02", start)
	s.End, _ = time.Parse("2006-01-02", end)
	s.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
	return &s, nil
}

func (q *queries) loadSnapshotChildren(ctx context.Context, s *travel.TripSnapshot) error {
	dayRows, err := q.db.QueryContext(ctx,
		`SELECT id, snapshot_id, day_id, date, exempt, reviewed
		 FROM day_snapshots WHERE snapshot_id = ? ORDER BY date ASC`, s.ID)
	if err != nil {
		return err
	}
	defer dayRows.Close()

	for dayRows.Next() {
		var d travel.DaySnapshot
		var date string
		if err := dayRows.Scan(&d.ID, &d.SnapshotID, &d.DayID, &date, &d.Exempt, &d.Reviewed); err != nil {
			return err
		}
		d.Date, _ = time.Parse("2006-01-02", date)
		s.Days = append(s.Days, d)
	}
	if err := dayRows.Err(); err != nil {
		return err
	}

	expRows, err := q.db.QueryContext(ctx,
		`SELECT id, snapshot_id, expense_id, day_id, concept, amount, state
		 FROM expense_snapshots WHERE snapshot_id = ? ORDER BY id ASC`, s.ID)
	if err != nil {
		return err
	}
	defer expRows.Close()

	for expRows.Next() {
		var e travel.ExpenseSnapshot
		var dayID sql.NullString
		var amount string
		if err := expRows.Scan(&e.ID, &e.SnapshotID, &e.ExpenseID, &dayID, &e.Concept, &amount, &e.State); err != nil {
			return err
		}
		e.DayID = travel.DayID(dayID.String)
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("corrupt amount for expense snapshot %s: %w", e.ID, err)
		}
		s.Expenses = append(s.Expenses, e)
	}
	return expRows.Err()
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (q *queries) InsertNotification(ctx context.Context, n travel.Notification) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO notifications (id, type, message, user_id, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Message, n.UserID, n.Read, n.CreatedAt.Format(time.RFC3339))
	return err
}

func (q *queries) ListNotifications(ctx context.Context, id travel.UserID) ([]travel.Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, type, message, user_id, read, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []travel.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		notifs = append(notifs, *n)
	}
	return notifs, rows.Err()
}

func (q *queries) FindUnreadNotification(ctx context.Context, id travel.UserID, t travel.NotificationType) (*travel.Notification, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, type, message, user_id, read, created_at
		 FROM notifications WHERE user_id = ? AND type = ? AND read = FALSE
		 ORDER BY created_at DESC LIMIT 1`, id, t)
	n, err := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (q *queries) UpdateNotificationMessage(ctx context.Context, id string, message string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE notifications SET message = ?, created_at = ? WHERE id = ?`,
		message, at.Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	return requireRow(res, fmt.Sprintf("notification %s", id))
}

func scanNotification(scan func(...any) error) (*travel.Notification, error) {
	var n travel.Notification
	var createdAt string
	if err := scan(&n.ID, &n.Type, &n.Message, &n.UserID, &n.Read, &createdAt); err != nil {
		return nil, err
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func dateStr(t time.Time) string {
	return t.Format("2006-01-02")
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullID(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// requireRow maps zero-row updates to travel.ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, travel.ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
