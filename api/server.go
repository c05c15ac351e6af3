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
  4. RateLimit:  Per-IP token bucket
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*       Submissions, streaks, overview, history
  /api/challenges/*  Challenge catalog
  /api/ranks         Rank table
  /api/admin/*       Reconciliation

SECURITY NOTE:
  No authentication middleware currently. The engine is expected to sit
  behind the platform's gateway, which authenticates and injects user IDs.

SEE ALSO:
  - handlers.go: Handler implementations
  - ratelimit.go: Rate limiting middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if opts.RateLimitRPS > 0 {
		r.Use(RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Route("/challenges/{slug}", func(r chi.Router) {
				r.Post("/submit", h.Submit)
				r.Post("/start", h.Start)
				r.Delete("/progress", h.ResetProgress)
				r.Get("/submissions", h.ListSubmissions)
				r.Get("/events", h.StreamEvents)
			})
			r.Post("/streak", h.RecordStreak)
			r.Get("/overview", h.GetOverview)
			r.Get("/history", h.GetHistory)
			r.Get("/progress", h.GetProgress)
		})

		// Challenge catalog routes
		r.Route("/challenges", func(r chi.Router) {
			r.Get("/", h.ListChallenges)
			r.Post("/", h.RegisterChallenge)
			r.Get("/{slug}", h.GetChallenge)
		})

		// Rank table
		r.Get("/ranks", h.ListRanks)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.TriggerReconcile)
		})
	})

	return r
}
