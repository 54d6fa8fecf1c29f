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
  /api/loyalty/profiles/*   Customer-facing profile views
  /api/loyalty/customers    Store-facing profile listing
  /api/loyalty/events       Business event ingest
  /api/loyalty/rewards/*    Reward redemption and expiry
  /api/loyalty/overview     Store engagement snapshot
  /api/scenarios/*          Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.
  The host application is expected to front these routes with its
  own auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/loyalty", func(r chi.Router) {
			// Customer-facing views
			r.Route("/profiles/{patientID}", func(r chi.Router) {
				r.Get("/", h.GetProfile)
				r.Get("/progress", h.GetProgress)
				r.Get("/rewards", h.GetRewards)
				r.Get("/history", h.GetHistory)
			})

			// Store-facing views
			r.Get("/customers", h.GetCustomers)
			r.Get("/overview", h.GetOverview)

			// Event ingest
			r.Post("/events", h.RecordEvent)

			// Rewards
			r.Route("/rewards", func(r chi.Router) {
				r.Get("/expired", h.GetExpiredRewards)
				r.Post("/{rewardID}/redeem", h.RedeemReward)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
