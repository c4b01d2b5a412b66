// Package api exposes the read-only status surface over HTTP.
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coursevault/coursevault/internal/api/handler"
	mw "github.com/coursevault/coursevault/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	courseHandler *handler.CourseHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	// Liveness (no auth)
	r.Get("/health", healthHandler.Live)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", healthHandler.Stats)

		r.Get("/courses", courseHandler.List)
		r.Get("/courses/{slug}/summary", courseHandler.Summary)
		r.Get("/courses/{slug}/lessons", courseHandler.Lessons)
		r.Post("/courses/{slug}/reset-errors", courseHandler.ResetErrors)
	})

	return r
}
