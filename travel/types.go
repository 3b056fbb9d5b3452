/*
Package travel provides the core domain model for the trip review and
publication engine.

PURPOSE:
  This package contains the shared types and contracts the rest of the
  system is built on: companies with a publication schedule, employees,
  trips with their reviewable travel days and expenses, immutable review
  snapshots, and notifications.

KEY CONCEPTS IN THIS FILE (types.go):
  - Company: owns the publication schedule (periodicity, release timestamps)
  - Trip/TravelDay/Expense: the reviewable unit and its children
  - TripSnapshot/DaySnapshot/ExpenseSnapshot: frozen, immutable copies
  - Notification: user-facing messages (deadline changes, review events)

DESIGN PRINCIPLES:
  1. Ownership is one-directional: a Trip owns its TravelDays, a TravelDay
     optionally owns Expenses. Back-references are indexed lookups, never
     bidirectional pointers.
  2. Precision: monetary amounts and salaries use decimal.Decimal.
  3. Type Safety: strong typing for IDs prevents mixing company/trip keys.
  4. Snapshots are evidence: once written they are never mutated.

SEE ALSO:
  - errors.go: error taxonomy
  - store.go: persistence contracts
  - roles.go: viewer scopes
  - periodicity.go: release interval math
*/
package travel

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CompanyID string
type EmployeeID string
type TripID string
type DayID string
type ExpenseID string
type UserID string

// =============================================================================
// COMPANY - owner of the publication schedule
// =============================================================================

// Company carries the per-company publication state. The scheduling fields
// (NextReleaseAt, LastReleaseAt, HasPendingReviewChanges, ForceRelease,
// ManualReleaseAt) are mutated exclusively by the publication scheduler.
type Company struct {
	ID          CompanyID
	Name        string
	UserID      UserID // notification target for deadline messages
	Periodicity Periodicity

	NextReleaseAt           *time.Time
	LastReleaseAt           *time.Time
	HasPendingReviewChanges bool
	ForceRelease            bool
	ManualReleaseAt         *time.Time

	CreatedAt time.Time
}

// Employee belongs to exactly one company. Salary is the annual gross,
// optional, used by the exemption calculator.
type Employee struct {
	ID        EmployeeID
	CompanyID CompanyID
	UserID    UserID
	Name      string
	Salary    *decimal.Decimal

	CreatedAt time.Time
}

// =============================================================================
// TRIP - a single business travel record
// =============================================================================

type TripState string

const (
	TripInReview TripState = "in_review"
	TripReviewed TripState = "reviewed"
)

type Trip struct {
	ID         TripID
	EmployeeID EmployeeID
	CompanyID  CompanyID

	Destination    string
	City           string
	Country        string
	International  bool
	VisitedCompany string
	Reason         string

	Start        time.Time // date-granular, UTC midnight
	End          time.Time
	DaysTraveled int

	State       TripState
	RequestedAt time.Time
	UpdatedAt   time.Time
}

// TravelDay is one calendar day of a trip, individually reviewable.
// Unique per (trip, date). Days start exempt until a reviewer decides.
type TravelDay struct {
	ID       DayID
	TripID   TripID
	Date     time.Time
	Exempt   bool
	Reviewed bool
}

// =============================================================================
// EXPENSE - cost item tied to a trip, optionally to a specific day
// =============================================================================

type ExpenseState string

const (
	ExpensePending          ExpenseState = "pending"
	ExpenseApproved         ExpenseState = "approved"
	ExpenseRejected         ExpenseState = "rejected"
	ExpenseJustifyRequested ExpenseState = "justify_requested"
)

type Expense struct {
	ID         ExpenseID
	EmployeeID EmployeeID
	CompanyID  CompanyID
	TripID     TripID
	DayID      DayID // empty when not attached to a specific day

	Concept     string
	Amount      decimal.Decimal
	State       ExpenseState
	ReceiptName string // opaque attachment reference, stored elsewhere

	ExpenseDate time.Time
	RequestedAt time.Time
}

// =============================================================================
// SNAPSHOTS - immutable frozen copies written at publication time
// =============================================================================

// TripSnapshot is the frozen image of a reviewed trip at a publication
// boundary. It references the live trip by ID for traceability but is never
// updated after creation. Children travel with it so the whole image is
// written as one atomic batch.
type TripSnapshot struct {
	ID         string
	TripID     TripID
	CompanyID  CompanyID
	EmployeeID EmployeeID

	Destination   string
	City          string
	Country       string
	International bool
	State         TripState
	Start         time.Time
	End           time.Time
	DaysTraveled  int

	TakenAt time.Time

	Days     []DaySnapshot
	Expenses []ExpenseSnapshot
}

type DaySnapshot struct {
	ID         string
	SnapshotID string
	DayID      DayID
	Date       time.Time
	Exempt     bool
	Reviewed   bool
}

type ExpenseSnapshot struct {
	ID         string
	SnapshotID string
	ExpenseID  ExpenseID
	DayID      DayID
	Concept    string
	Amount     decimal.Decimal
	State      ExpenseState
}

// =============================================================================
// NOTIFICATION
// =============================================================================

type NotificationType string

const (
	NotifReviewDeadlineChanged NotificationType = "review_deadline_changed"
	NotifTripReviewed          NotificationType = "trip_reviewed"
	NotifTripReopened          NotificationType = "trip_reopened"
)

type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	UserID    UserID
	Read      bool
	CreatedAt time.Time
}

// =============================================================================
// DATE HELPERS
// =============================================================================

// Date truncates t to UTC midnight. All TravelDay dates and trip boundaries
// are stored at day granularity.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDate builds a day-granular UTC time.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaySpan returns the inclusive number of calendar days in [start, end].
func DaySpan(start, end time.Time) int {
	return int(Date(end).Sub(Date(start)).Hours()/24) + 1
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
