/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend clients

SECURITY NOTE:
  No authentication middleware; authn/authz is owned by the surrounding
  platform, not this engine.

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
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/works", func(r chi.Router) {
			r.Get("/", h.ListWorks)
			r.Post("/", h.CreateWork)
			r.Get("/{id}", h.GetWork)
			r.Delete("/{id}", h.DeleteWork)
			r.Post("/{id}/status", h.UpdateWorkStatus)
			r.Get("/{id}/periods", h.ListWorkPeriods)
			r.Post("/{id}/backfill", h.BackfillWork)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Get("/{id}", h.GetService)
			r.Get("/{id}/templates", h.ListServiceTemplates)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/{id}/tasks", h.ListPeriodTasks)
			r.Post("/{id}/tasks", h.AddTask)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/{id}/status", h.SetTaskStatus)
			r.Delete("/{id}", h.RemoveTask)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Delete("/{id}", h.DeleteInvoice)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/backfill", h.BackfillAll)
			r.Post("/overdue", h.UpdateOverdue)
		})
	})

	return r
}
