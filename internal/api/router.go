package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/studycache/internal/api/middleware"
	"github.com/phrazzld/studycache/internal/api/shared"
	"github.com/phrazzld/studycache/internal/service"
	"github.com/phrazzld/studycache/internal/service/auth"
	"github.com/phrazzld/studycache/internal/version"
)

// RouterDeps holds the services the router exposes.
type RouterDeps struct {
	Cache         service.CacheService
	Reviews       service.ReviewService
	Notifications NotificationCenter
	JWT           auth.JWTService
	Logger        *slog.Logger
}

// NewRouter builds the HTTP handler with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewTraceMiddleware(log))

	cacheHandler := NewCacheHandler(deps.Cache, log)
	reviewHandler := NewReviewHandler(deps.Reviews, log)
	notificationHandler := NewNotificationHandler(deps.Notifications, log)
	authMiddleware := middleware.NewAuthMiddleware(deps.JWT)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", cacheHandler.Query)
		r.Get("/cache/snapshot", cacheHandler.Snapshot)
		r.Get("/cache/stats", cacheHandler.Stats)

		r.Get("/notifications", notificationHandler.List)
		r.Post("/notifications/{id}/action", notificationHandler.Trigger)
		r.Delete("/notifications/{id}", notificationHandler.Dismiss)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/cache/persist", cacheHandler.Persist)
			r.Delete("/cache", cacheHandler.Clear)
			r.Post("/reviews", reviewHandler.SubmitReview)
		})
	})

	return r
}
