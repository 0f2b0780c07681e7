/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/clients/*       Client registry, history, rate sheets, documents
  /api/routes/*        Route registry
  /api/assignments/*   Client-route assignments
  /api/diesel/*        Diesel price index
  /api/adjustments/*   Monthly batch, previews, runs, due signal
  /api/settings        Control settings
  /api/documents/*     Contract document download/delete

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public;
  the engine is designed for a single trusted operator behind a VPN.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Get("/{id}/assignments", h.ListClientAssignments)
			r.Get("/{id}/history", h.GetClientHistory)
			r.Get("/{id}/ratesheet", h.DownloadRateSheet)
			r.Get("/{id}/documents", h.ListDocuments)
			r.Post("/{id}/documents", h.UploadDocument)
		})

		// Route routes
		r.Route("/routes", func(r chi.Router) {
			r.Get("/", h.ListRoutes)
			r.Post("/", h.CreateRoute)
			r.Get("/{id}", h.GetRoute)
		})

		// Assignment routes
		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.Assign)
			r.Post("/import", h.ImportAssignments)
			r.Get("/{id}", h.GetAssignment)
			r.Put("/{id}", h.ChangeRate)
			r.Post("/{id}/deactivate", h.Deactivate)
			r.Post("/{id}/reactivate", h.Reactivate)
			r.Get("/{id}/history", h.GetAssignmentHistory)
		})

		// Diesel index routes
		r.Route("/diesel", func(r chi.Router) {
			r.Get("/", h.ListDieselPrices)
			r.Post("/", h.RecordDieselPrice)
			r.Get("/current", h.GetCurrentDieselPrice)
		})

		// Adjustment routes
		r.Route("/adjustments", func(r chi.Router) {
			r.Post("/run", h.RunAdjustment)
			r.Get("/runs", h.ListRuns)
			r.Get("/due", h.GetDue)
			r.Get("/preview", h.PreviewAdjustments)
			r.Post("/apply-selected", h.ApplySelected)
			r.Get("/periods/{month}", h.GetPeriodHistory)
		})

		// Settings routes
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)

		// Document routes
		r.Route("/documents", func(r chi.Router) {
			r.Get("/{id}/download", h.DownloadDocument)
			r.Delete("/{id}", h.DeleteDocument)
		})

		// Demo routes (dev only)
		r.Route("/demo", func(r chi.Router) {
			r.Post("/load", h.LoadDemo)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
