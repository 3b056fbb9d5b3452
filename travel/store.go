/*
store.go - Persistence contracts

PURPOSE:
  Defines the interface between the domain services and the database.
  Different implementations can use SQLite or in-memory storage; the
  services only see these contracts.

ATOMICITY:
  Multi-row mutations (review cascades, snapshot batches, schedule updates)
  run inside WithTx. If the function returns an error the transaction is
  rolled back and entity state is exactly as before the call - partial
  application is a correctness violation, not merely undesirable.

IMMUTABILITY:
  Snapshot tables are insert-only. There is no update or delete method for
  snapshots on purpose; corrections happen by publishing a newer snapshot.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - store/memory: in-memory store for tests/dev
*/
package travel

import (
	"context"
	"time"
)

// Store is the persistence contract shared by all domain services.
type Store interface {
	// --- companies ---

	// SaveCompany inserts or fully updates a company (provisioning paths).
	SaveCompany(ctx context.Context, c Company) error
	GetCompany(ctx context.Context, id CompanyID) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)

	// SaveCompanySchedule persists the scheduling fields (periodicity,
	// release timestamps, pending/force/manual flags). Only the publication
	// scheduler calls this.
	SaveCompanySchedule(ctx context.Context, c *Company) error

	// MarkCompanyPending sets has_pending_review_changes. Idempotent.
	MarkCompanyPending(ctx context.Context, id CompanyID) error

	// --- employees ---

	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// --- trips ---

	InsertTrip(ctx context.Context, t Trip) error
	GetTrip(ctx context.Context, id TripID) (*Trip, error)
	UpdateTripState(ctx context.Context, id TripID, state TripState, at time.Time) error
	ListTripsByEmployee(ctx context.Context, id EmployeeID) ([]Trip, error)
	ListTripsByCompany(ctx context.Context, id CompanyID, states ...TripState) ([]Trip, error)

	// HasOverlappingTrip reports whether the employee has a trip in any of
	// the given states whose [start, end] window intersects the given one.
	HasOverlappingTrip(ctx context.Context, id EmployeeID, start, end time.Time, states ...TripState) (bool, error)

	// --- travel days ---

	// UpsertDay inserts the day or leaves an existing (trip, date) row
	// untouched. Never duplicates.
	UpsertDay(ctx context.Context, d TravelDay) error
	ListDays(ctx context.Context, id TripID) ([]TravelDay, error)
	SetDayReview(ctx context.Context, id DayID, exempt, reviewed bool) error

	// ResetDayReviews clears the reviewed flag on every day of the trip.
	ResetDayReviews(ctx context.Context, id TripID) error

	// CountExemptDays counts reviewed exempt days for the employee with
	// dates inside [from, to].
	CountExemptDays(ctx context.Context, id EmployeeID, from, to time.Time) (int, error)

	// --- expenses ---

	InsertExpense(ctx context.Context, e Expense) error
	ListExpensesByTrip(ctx context.Context, id TripID) ([]Expense, error)
	ListExpensesByDay(ctx context.Context, id DayID) ([]Expense, error)
	SetExpenseStateByDay(ctx context.Context, id DayID, state ExpenseState) error

	// ResetExpenseStates returns every non-pending expense of the trip to
	// pending (used by reopen).
	ResetExpenseStates(ctx context.Context, id TripID) error

	// --- snapshots (insert-only) ---

	// InsertTripSnapshot writes the snapshot together with its day and
	// expense children.
	InsertTripSnapshot(ctx context.Context, s TripSnapshot) error

	// LatestSnapshotByTrip returns the most recent snapshot for the trip,
	// children included, or nil when none exists.
	LatestSnapshotByTrip(ctx context.Context, id TripID) (*TripSnapshot, error)

	// ListLatestSnapshotsByCompany returns the latest snapshot per trip for
	// the company, children included.
	ListLatestSnapshotsByCompany(ctx context.Context, id CompanyID) ([]TripSnapshot, error)

	// --- notifications ---

	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, id UserID) ([]Notification, error)

	// FindUnreadNotification returns the unread notification of the given
	// type for the user, or nil.
	FindUnreadNotification(ctx context.Context, id UserID, t NotificationType) (*Notification, error)

	// UpdateNotificationMessage rewrites the message and creation time of an
	// existing notification (deadline replacement semantics).
	UpdateNotificationMessage(ctx context.Context, id string, message string, at time.Time) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// ConversationStarter opens a message thread between a reviewer and an
// employee (external messaging subsystem). Failures are logged by the caller
// and never roll back the surrounding review.
type ConversationStarter interface {
	Start(ctx context.Context, actor UserID, employee UserID, trip TripID, note string) error
}

// Mailer delivers fire-and-forget email. Failure does not roll back the core
// transaction that triggered it.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
