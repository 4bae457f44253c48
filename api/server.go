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
  /api/periods/*            Fiscal calendar management
  /api/subscriptions/*      Client tax-model enrollments
  /api/obligations/*        Obligation lifecycle, generation, sweeping
  /api/tax-control-matrix   Client x model status grid
  /api/clients/*            Client directory projection
  /api/scenarios/*          Demo data loaders (development only)

SECURITY NOTE:
  No authentication middleware currently. The X-Actor header is trusted;
  the reverse proxy in front is expected to set it.

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

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Fiscal calendar routes
		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.ListPeriods)
			r.Post("/", h.CreatePeriod)
			r.Get("/open", h.ListOpenPeriods)
			r.Post("/{year:[0-9]+}/clone", h.CloneYear)
			r.Get("/{id}", h.GetPeriod)
			r.Patch("/{id}", h.UpdatePeriod)
			r.Delete("/{id}", h.DeletePeriod)
		})

		// Subscription routes
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", h.CreateSubscription)
			r.Get("/{id}", h.GetSubscription)
			r.Patch("/{id}/toggle", h.ToggleSubscription)
		})

		// Obligation routes
		r.Route("/obligations", func(r chi.Router) {
			r.Get("/", h.ListObligations)
			r.Get("/open", h.ListOpenObligations)
			r.Get("/stats", h.ObligationStats)
			r.Post("/generate-auto", h.GenerateAuto)
			r.Post("/generate-period/{periodId}", h.GeneratePeriod)
			r.Post("/generate-client/{clientId}", h.GenerateClient)
			r.Post("/mark-overdue", h.MarkOverdue)
			r.Get("/{id}", h.GetObligation)
			r.Patch("/{id}", h.UpdateObligation)
			r.Post("/{id}/complete", h.CompleteObligation)
			r.Delete("/{id}", h.DeleteObligation)
		})

		// Status matrix
		r.Get("/tax-control-matrix", h.TaxControlMatrix)

		// Client directory routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Get("/{id}", h.GetClient)
			r.Put("/{id}", h.SaveClient)
			r.Get("/{id}/subscriptions", h.ListClientSubscriptions)
		})

		// Demo scenario routes (development/demo only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
