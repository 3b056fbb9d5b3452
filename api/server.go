/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/trips/*        Trip lifecycle and review
  /api/expenses       Expense registration
  /api/companies/*    Publication controls
  /api/summary        Merged company aggregates
  /api/users/*        Notifications
  /api/employees/*    Exemption discount

SECURITY NOTE:
  Authentication is external; the router trusts the X-Role scope headers.
  Do not expose this service without a gateway that sets them.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Role", "X-Company-ID", "X-Employee-ID", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Trip routes
		r.Route("/trips", func(r chi.Router) {
			r.Get("/", h.ListTrips)
			r.Post("/", h.CreateTrip)
			r.Post("/{id}/finish", h.FinishTrip)
			r.Post("/{id}/review", h.FinalizeReview)
			r.Post("/{id}/reopen", h.ReopenTrip)
			r.Post("/{id}/days/exempt", h.SetDaysExempt)
		})

		// Expense routes
		r.Post("/expenses", h.CreateExpense)

		// Publication routes
		r.Route("/companies", func(r chi.Router) {
			r.Post("/{id}/publish", h.PublishCompany)
			r.Put("/{id}/schedule", h.SetSchedule)
		})
		r.Get("/summary", h.GetSummary)

		// Notification routes
		r.Get("/users/{id}/notifications", h.ListNotifications)

		// Exemption routes
		r.Get("/employees/{id}/exemption", h.GetExemption)
	})

	return r
}
