/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router and middleware for the read-only lineage
  query API. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Lightweight, context-based, RESTful route patterns.

MIDDLEWARE STACK:
  1. Recoverer:  Panic recovery (500 instead of crash)
  2. RequestID:  Unique ID per request for tracing
  3. CORS:       Cross-origin requests for BI dashboards

ROUTE GROUPS:
  /api/summary                     Run-level statistics
  /api/batches/*                   Lineage queries per batch
  /api/losses                      Loss totals by reason
  /api/findings                    Data-integrity findings

CONCURRENCY NOTE:
  Every handler is a pure read over the immutable post-build graph, so
  concurrent requests need no locking. The graph is fully built before
  the server starts listening.

SECURITY NOTE:
  No authentication middleware. The API is an internal analysis
  surface, not a public product endpoint.

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

// NewRouter creates a router with all query routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/summary", h.GetSummary)
		r.Get("/losses", h.GetLosses)
		r.Get("/findings", h.GetFindings)

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Get("/{batch}", h.GetBatchLineage)
			r.Get("/{batch}/contributors", h.GetContributors)
			r.Get("/{batch}/descendants", h.GetDescendants)
			r.Get("/{batch}/tree", h.GetLineageTree)
			r.Get("/{batch}/report", h.GetBatchReport)
		})
	})

	return r
}
