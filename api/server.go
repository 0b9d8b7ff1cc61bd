/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the agenda web app

ROUTE GROUPS:
  /health        Liveness probe
  /admin/sync    Feed sync trigger (shared-secret header)
  /v1/*          Read API for parades, services, types, neighborhoods

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
		AllowedOrigins: []string{"http://localhost:3000", "https://agenda.carnavalderua.rio"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token"},
	}))

	r.Get("/health", h.Health)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/sync", h.SyncFeed)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/parades", func(r chi.Router) {
			r.Get("/", h.ListParades)
			r.Get("/{id}", h.GetParade)
		})
		r.Get("/services", h.ListServices)
		r.Get("/service-types", h.ListServiceTypes)
		r.Get("/neighborhoods", h.ListNeighborhoods)
	})

	return r
}
