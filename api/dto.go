/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run the
  shared validator before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/travel-engine/publication"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// TRIP TYPES
// =============================================================================

// CreateTripRequest is the request to register a trip.
type CreateTripRequest struct {
	EmployeeID     string `json:"employee_id" validate:"required"`
	Destination    string `json:"destination" validate:"required"`
	City           string `json:"city"`
	Country        string `json:"country"`
	International  bool   `json:"international"`
	VisitedCompany string `json:"visited_company"`
	Reason         string `json:"reason"`
	Start          string `json:"start" validate:"required,datetime=2006-01-02"`
	End            string `json:"end" validate:"required,datetime=2006-01-02"`
}

// TripDTO represents a trip (live or published) in API responses.
type TripDTO struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employee_id"`
	CompanyID     string `json:"company_id"`
	Destination   string `json:"destination"`
	City          string `json:"city,omitempty"`
	Country       string `json:"country,omitempty"`
	International bool   `json:"international"`
	State         string `json:"state"`
	Start         string `json:"start"`
	End           string `json:"end"`
	DaysTraveled  int    `json:"days_traveled"`

	Published   bool   `json:"published"`
	PublishedAt string `json:"published_at,omitempty"`

	Days     []DayDTO     `json:"days,omitempty"`
	Expenses []ExpenseDTO `json:"expenses,omitempty"`
}

// DayDTO is one travel day in API responses.
type DayDTO struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Exempt   bool   `json:"exempt"`
	Reviewed bool   `json:"reviewed"`
}

// ExpenseDTO is one expense in API responses.
type ExpenseDTO struct {
	ID      string `json:"id"`
	DayID   string `json:"day_id,omitempty"`
	Concept string `json:"concept"`
	Amount  string `json:"amount"`
	State   string `json:"state"`
}

// =============================================================================
// REVIEW TYPES
// =============================================================================

// DayDecisionRequest is one reviewer decision in a finalize call.
type DayDecisionRequest struct {
	DayID  string `json:"day_id" validate:"required"`
	Exempt bool   `json:"exempt"`
}

// FinalizeReviewRequest finalizes a trip review. Decisions must cover the
// trip's day set exactly.
type FinalizeReviewRequest struct {
	Decisions []DayDecisionRequest `json:"decisions" validate:"required,min=1,dive"`
	Note      string               `json:"note"`
}

// ReviewResultDTO summarizes a finalized review.
type ReviewResultDTO struct {
	TripID              string `json:"trip_id"`
	DaysProcessed       int    `json:"days_processed"`
	DaysNonExempt       int    `json:"days_non_exempt"`
	ConversationCreated bool   `json:"conversation_created"`
}

// SetExemptBatchRequest toggles the exemption status of several days.
type SetExemptBatchRequest struct {
	DayIDs []string `json:"day_ids" validate:"required,min=1"`
	Exempt bool     `json:"exempt"`
}

// =============================================================================
// EXPENSE TYPES
// =============================================================================

// CreateExpenseRequest registers an expense against an in-review trip.
type CreateExpenseRequest struct {
	TripID      string `json:"trip_id" validate:"required"`
	DayID       string `json:"day_id"`
	Concept     string `json:"concept" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	ReceiptName string `json:"receipt_name"`
	ExpenseDate string `json:"expense_date" validate:"required,datetime=2006-01-02"`
}

// =============================================================================
// PUBLICATION TYPES
// =============================================================================

// SetScheduleRequest updates a company's publication schedule.
type SetScheduleRequest struct {
	Periodicity     string `json:"periodicity" validate:"required,oneof=monthly quarterly semiannual annual"`
	ManualReleaseAt string `json:"manual_release_at,omitempty"`
}

// PublishResultDTO reports the outcome of a publish call.
type PublishResultDTO struct {
	CompanyID string `json:"company_id"`
	Published bool   `json:"published"`
}

// CompanySummaryDTO aggregates a company's visible trips.
type CompanySummaryDTO struct {
	CompanyID          string `json:"company_id"`
	Trips              int    `json:"trips"`
	PublishedTrips     int    `json:"published_trips"`
	NationalTrips      int    `json:"national_trips"`
	InternationalTrips int    `json:"international_trips"`
	Days               int    `json:"days"`
	ExemptDays         int    `json:"exempt_days"`
	ApprovedTotal      string `json:"approved_total"`
}

// =============================================================================
// MISC TYPES
// =============================================================================

// NotificationDTO is one user notification.
type NotificationDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// ExemptionDTO is the capped discount for an employee over a window.
type ExemptionDTO struct {
	EmployeeID string `json:"employee_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Discount   string `json:"discount"`
}

// ErrorDTO is the uniform error body.
type ErrorDTO struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func tripDTO(v *publication.TripView) TripDTO {
	dto := TripDTO{
		ID:            string(v.TripID),
		EmployeeID:    string(v.EmployeeID),
		CompanyID:     string(v.CompanyID),
		Destination:   v.Destination,
		City:          v.City,
		Country:       v.Country,
		International: v.International,
		State:         string(v.State),
		Start:         v.Start.Format("2006-01-02"),
		End:           v.End.Format("2006-01-02"),
		DaysTraveled:  v.DaysTraveled,
		Published:     v.Published,
	}
	if v.PublishedAt != nil {
		dto.PublishedAt = v.PublishedAt.Format(time.RFC3339)
	}
	for _, d := range v.Days {
		dto.Days = append(dto.Days, DayDTO{
			ID:       string(d.DayID),
			Date:     d.Date.Format("2006-01-02"),
			Exempt:   d.Exempt,
			Reviewed: d.Reviewed,
		})
	}
	for _, e := range v.Expenses {
		dto.Expenses = append(dto.Expenses, ExpenseDTO{
			ID:      string(e.ExpenseID),
			DayID:   string(e.DayID),
			Concept: e.Concept,
			Amount:  e.Amount.StringFixed(2),
			State:   string(e.State),
		})
	}
	return dto
}

func liveTripDTO(t *travel.Trip) TripDTO {
	return TripDTO{
		ID:            string(t.ID),
		EmployeeID:    string(t.EmployeeID),
		CompanyID:     string(t.CompanyID),
		Destination:   t.Destination,
		City:          t.City,
		Country:       t.Country,
		International: t.International,
		State:         string(t.State),
		Start:         t.Start.Format("2006-01-02"),
		End:           t.End.Format("2006-01-02"),
		DaysTraveled:  t.DaysTraveled,
	}
}
