/*
handlers.go - HTTP API handlers for the trip review and publication engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, viewer scope resolution, and delegates to domain logic.

ENDPOINTS:
  Trips:
    POST   /api/trips                      Register a trip
    GET    /api/trips                      List visible trips (merged view)
    POST   /api/trips/{id}/finish          Reconcile the day set
    POST   /api/trips/{id}/review          Finalize review (day decisions)
    POST   /api/trips/{id}/reopen          Return a reviewed trip to review
    POST   /api/trips/{id}/days/exempt     Batch day exemption toggle

  Expenses:
    POST   /api/expenses                   Register an expense

  Publication:
    POST   /api/companies/{id}/publish     Force a publication cycle
    PUT    /api/companies/{id}/schedule    Update periodicity / manual deadline
    GET    /api/summary                    Aggregate visible trips

  Misc:
    GET    /api/users/{id}/notifications   User inbox
    GET    /api/employees/{id}/exemption   Capped discount over a window

VIEWER SCOPES:
  Authentication is external. Handlers trust the scope headers:
    X-Role:        master | company | employee
    X-Company-ID:  company scope target
    X-Employee-ID: employee scope target
    X-User-ID:     acting user (conversation attribution)
  Missing headers default to master (back office).

LAZY PUBLICATION:
  Company read paths call EnsureUpToDate before reading, so a company whose
  deadline passed sees its publication happen on first access rather than
  waiting for the background sweep.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Actor scope does not cover the target
  - 404: Resource not found
  - 409: State conflicts (wrong trip state, day-count mismatch)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/travel-engine/exemption"
	"github.com/warp/travel-engine/publication"
	"github.com/warp/travel-engine/review"
	"github.com/warp/travel-engine/travel"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      travel.TxStore
	Lifecycle  *review.Lifecycle
	Ledger     *review.DayLedger
	Scheduler  *publication.Scheduler
	Merger     *publication.Merger
	Calculator *exemption.Calculator

	Validate *validator.Validate
	Logger   *zap.Logger
}

// NewHandler wires the services over the given store.
func NewHandler(store travel.TxStore, conversations travel.ConversationStarter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	lifecycle := review.NewLifecycle(store, conversations)
	return &Handler{
		Store:      store,
		Lifecycle:  lifecycle,
		Ledger:     lifecycle.Ledger,
		Scheduler:  publication.NewScheduler(store, logger),
		Merger:     &publication.Merger{Store: store},
		Calculator: &exemption.Calculator{Store: store},
		Validate:   validator.New(),
		Logger:     logger,
	}
}

// =============================================================================
// VIEWER SCOPE RESOLUTION
// =============================================================================

// viewerScope builds a travel.Role from the scope headers.
func viewerScope(r *http.Request) travel.Role {
	switch r.Header.Get("X-Role") {
	case "company":
		return travel.CompanyScope{CompanyID: travel.CompanyID(r.Header.Get("X-Company-ID"))}
	case "employee":
		return travel.EmployeeScope{
			EmployeeID: travel.EmployeeID(r.Header.Get("X-Employee-ID")),
			CompanyID:  travel.CompanyID(r.Header.Get("X-Company-ID")),
		}
	default:
		return travel.Master{}
	}
}

func actingUser(r *http.Request) travel.UserID {
	return travel.UserID(r.Header.Get("X-User-ID"))
}

// =============================================================================
// TRIP HANDLERS
// =============================================================================

// CreateTrip registers a trip with one travel day per date in its window.
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := time.Parse("2006-01-02", req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := time.Parse("2006-01-02", req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	emp, err := h.Store.GetEmployee(r.Context(), travel.EmployeeID(req.EmployeeID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	if !viewerScope(r).CanActFor(emp) {
		writeError(w, http.StatusForbidden, "Not allowed to create trips for this employee", nil)
		return
	}

	trip, err := h.Lifecycle.Create(r.Context(), review.CreateTripInput{
		EmployeeID:     travel.EmployeeID(req.EmployeeID),
		Destination:    req.Destination,
		City:           req.City,
		Country:        req.Country,
		International:  req.International,
		VisitedCompany: req.VisitedCompany,
		Reason:         req.Reason,
		Start:          start,
		End:            end,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create trip", err)
		return
	}
	writeJSON(w, http.StatusCreated, liveTripDTO(trip))
}

// ListTrips returns the merged trip view for the requested company, or the
// caller's own live trips under employee scope.
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	companyID := travel.CompanyID(r.URL.Query().Get("company_id"))
	viewer := viewerScope(r)

	if companyID != "" {
		h.ensureUpToDate(r, companyID)
	}

	expand := publication.Expand{}
	switch r.URL.Query().Get("expand") {
	case "days":
		expand.Days = true
	case "expenses":
		expand.Expenses = true
	case "days,expenses", "expenses,days", "all":
		expand.Days = true
		expand.Expenses = true
	}

	views, err := h.Merger.VisibleTrips(r.Context(), viewer, companyID, expand)
	if err != nil {
		h.writeDomainError(w, "Failed to list trips", err)
		return
	}

	dtos := make([]TripDTO, len(views))
	for i := range views {
		dtos[i] = tripDTO(&views[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// FinishTrip reconciles the trip's day set (idempotent).
func (h *Handler) FinishTrip(w http.ResponseWriter, r *http.Request) {
	id := travel.TripID(chi.URLParam(r, "id"))
	trip, err := h.Lifecycle.Finish(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to finish trip", err)
		return
	}
	writeJSON(w, http.StatusOK, liveTripDTO(trip))
}

// FinalizeReview applies the reviewer's day decisions and transitions the
// trip to reviewed.
func (h *Handler) FinalizeReview(w http.ResponseWriter, r *http.Request) {
	id := travel.TripID(chi.URLParam(r, "id"))

	var req FinalizeReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	decisions := make([]review.DayDecision, len(req.Decisions))
	for i, d := range req.Decisions {
		decisions[i] = review.DayDecision{DayID: travel.DayID(d.DayID), Exempt: d.Exempt}
	}

	result, err := h.Lifecycle.FinalizeReview(r.Context(), id, decisions, req.Note, viewerScope(r), actingUser(r))
	if err != nil {
		h.writeDomainError(w, "Failed to finalize review", err)
		return
	}
	writeJSON(w, http.StatusOK, ReviewResultDTO{
		TripID:              string(result.TripID),
		DaysProcessed:       result.DaysProcessed,
		DaysNonExempt:       result.DaysNonExempt,
		ConversationCreated: result.ConversationCreated,
	})
}

// ReopenTrip returns a reviewed trip to review.
func (h *Handler) ReopenTrip(w http.ResponseWriter, r *http.Request) {
	id := travel.TripID(chi.URLParam(r, "id"))
	trip, err := h.Lifecycle.Reopen(r.Context(), id, viewerScope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to reopen trip", err)
		return
	}
	writeJSON(w, http.StatusOK, liveTripDTO(trip))
}

// SetDaysExempt toggles the exemption status of a batch of days.
func (h *Handler) SetDaysExempt(w http.ResponseWriter, r *http.Request) {
	id := travel.TripID(chi.URLParam(r, "id"))

	var req SetExemptBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	dayIDs := make([]travel.DayID, len(req.DayIDs))
	for i, d := range req.DayIDs {
		dayIDs[i] = travel.DayID(d)
	}

	if err := h.Ledger.SetExemptBatch(r.Context(), id, dayIDs, req.Exempt, viewerScope(r)); err != nil {
		h.writeDomainError(w, "Failed to update days", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// CreateExpense registers an expense against an in-review trip.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.ExpenseDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid expense date", err)
		return
	}

	expense, err := h.Lifecycle.AddExpense(r.Context(), review.AddExpenseInput{
		TripID:      travel.TripID(req.TripID),
		DayID:       travel.DayID(req.DayID),
		Concept:     req.Concept,
		Amount:      req.Amount,
		ReceiptName: req.ReceiptName,
		ExpenseDate: date,
	}, viewerScope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, ExpenseDTO{
		ID:      string(expense.ID),
		DayID:   string(expense.DayID),
		Concept: expense.Concept,
		Amount:  expense.Amount.StringFixed(2),
		State:   string(expense.State),
	})
}

// =============================================================================
// PUBLICATION HANDLERS
// =============================================================================

// PublishCompany forces an immediate publication cycle.
func (h *Handler) PublishCompany(w http.ResponseWriter, r *http.Request) {
	id := travel.CompanyID(chi.URLParam(r, "id"))
	published, err := h.Scheduler.PublishNow(r.Context(), id, viewerScope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to publish", err)
		return
	}
	writeJSON(w, http.StatusOK, PublishResultDTO{CompanyID: string(id), Published: published})
}

// SetSchedule updates the company's periodicity and optional manual deadline.
func (h *Handler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	id := travel.CompanyID(chi.URLParam(r, "id"))

	var req SetScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	var manual *time.Time
	if req.ManualReleaseAt != "" {
		t, err := time.Parse(time.RFC3339, req.ManualReleaseAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid manual release time", err)
			return
		}
		manual = &t
	}

	err := h.Scheduler.SetSchedule(r.Context(), id, travel.Periodicity(req.Periodicity), manual, viewerScope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to update schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSummary aggregates the viewer-visible trips of a company.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	companyID := travel.CompanyID(r.URL.Query().Get("company_id"))
	if companyID == "" {
		writeError(w, http.StatusBadRequest, "company_id is required", nil)
		return
	}

	h.ensureUpToDate(r, companyID)

	sum, err := h.Merger.Summary(r.Context(), viewerScope(r), companyID)
	if err != nil {
		h.writeDomainError(w, "Failed to build summary", err)
		return
	}
	writeJSON(w, http.StatusOK, CompanySummaryDTO{
		CompanyID:          string(sum.CompanyID),
		Trips:              sum.Trips,
		PublishedTrips:     sum.PublishedTrips,
		NationalTrips:      sum.NationalTrips,
		InternationalTrips: sum.InternationalTrips,
		Days:               sum.Days,
		ExemptDays:         sum.ExemptDays,
		ApprovedTotal:      sum.ApprovedTotal.StringFixed(2),
	})
}

// ensureUpToDate runs a lazy publication check before company reads. A
// failure is logged, not surfaced: stale reads beat failed reads.
func (h *Handler) ensureUpToDate(r *http.Request, id travel.CompanyID) {
	if _, err := h.Scheduler.EnsureUpToDate(r.Context(), id); err != nil && !errors.Is(err, travel.ErrNotFound) {
		h.Logger.Warn("lazy publication check failed",
			zap.String("company_id", string(id)),
			zap.Error(err))
	}
}

// =============================================================================
// MISC HANDLERS
// =============================================================================

// ListNotifications returns the user's inbox, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := travel.UserID(chi.URLParam(r, "id"))
	notifs, err := h.Store.ListNotifications(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}

	dtos := make([]NotificationDTO, len(notifs))
	for i, n := range notifs {
		dtos[i] = NotificationDTO{
			ID:        n.ID,
			Type:      string(n.Type),
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetExemption returns the capped discount for an employee over [from, to].
func (h *Handler) GetExemption(w http.ResponseWriter, r *http.Request) {
	id := travel.EmployeeID(chi.URLParam(r, "id"))

	from, err := parseDateParam(r, "from", travel.NewDate(time.Now().Year(), time.January, 1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := parseDateParam(r, "to", travel.NewDate(time.Now().Year(), time.December, 31))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	discount, err := h.Calculator.DiscountForEmployee(r.Context(), id, from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to compute exemption", err)
		return
	}
	writeJSON(w, http.StatusOK, ExemptionDTO{
		EmployeeID: string(id),
		From:       from.Format("2006-01-02"),
		To:         to.Format("2006-01-02"),
		Discount:   discount.StringFixed(2),
	})
}

func parseDateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return time.Parse("2006-01-02", v)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// decode parses and validates the JSON body, writing the error response
// itself. Returns false when the caller should stop.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps domain errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, travel.ErrNotFound):
		writeError(w, http.StatusNotFound, msg, err)
	case errors.Is(err, travel.ErrUnauthorized):
		writeError(w, http.StatusForbidden, msg, err)
	case errors.Is(err, travel.ErrValidation):
		writeError(w, http.StatusBadRequest, msg, err)
	case errors.Is(err, travel.ErrStateConflict):
		writeError(w, http.StatusConflict, msg, err)
	default:
		h.Logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := ErrorDTO{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}
