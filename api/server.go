/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RequestLogger:  Structured request logging (logging package)
  3. Recoverer:      Panic recovery (500 instead of crash)
  4. CORS:           Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/generate          Bulk generation
  /api/entries/*         Entry reads and payment transitions
  /api/definitions/*     Definition administration, history
  /api/stats             Statistics
  /api/admin/*           Admin operations
  /api/scenarios/*       Demo scenarios
  /healthz               Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/obligation-engine/logging"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins defaults to every origin when empty.
func NewRouter(h *Handler, logger *logging.Logger, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", h.GenerateAll)
		r.Get("/stats", h.GetStats)
		r.Get("/kinds", h.ListKinds)

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Get("/{id}", h.GetEntry)
			r.Delete("/{id}", h.DeleteEntry)
			r.Put("/{id}/channels/{channel}/pay", h.MarkPaid)
			r.Put("/{id}/pending-amount", h.EditPendingAmount)
		})

		// Definition routes
		r.Route("/definitions", func(r chi.Router) {
			r.Get("/", h.ListDefinitions)
			r.Post("/", h.CreateDefinition)
			r.Get("/{id}", h.GetDefinition)
			r.Put("/{id}", h.UpdateDefinition)
			r.Delete("/{id}", h.DeleteDefinition)
			r.Put("/{id}/status", h.SetDefinitionStatus)
			r.Post("/{id}/generate", h.GenerateDefinition)
			r.Get("/{id}/history", h.GetHistory)
		})

		// Domain admin actions
		r.Post("/salaries", h.SetSalary)
		r.Post("/expenses", h.AddExpense)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/autopay/run", h.TriggerAutoPay)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
