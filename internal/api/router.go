package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/4thel00z/haconf/internal"
)

// NewRouter creates a chi router with all API routes mounted.
// events, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(uc *internal.UseCases, token string, events http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(uc, logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(token))

	r.Get("/files", h.ListFiles)
	r.Get("/files/*", h.ReadFile)
	r.Put("/files/*", h.WriteFile)
	r.Post("/files/*", h.AppendFile)
	r.Delete("/files/*", h.DeleteFile)

	r.Post("/mutations", h.Mutate)

	r.Get("/versions", h.ListVersions)
	r.Get("/versions/head", h.Head)
	r.Get("/versions/{id}", h.GetVersion)
	r.Get("/versions/{id}/tree", h.VersionTree)
	r.Get("/versions/{id}/files/*", h.VersionFile)

	r.Get("/diff", h.Diff)
	r.Post("/rollback", h.Rollback)
	r.Get("/status", h.Status)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}

// NewServer builds the full HTTP handler: request middleware, health and
// metrics endpoints, and the API under /api.
func NewServer(uc *internal.UseCases, token string, events http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := uc.Log.Execute(r.Context(), internal.LogInput{Limit: 1}); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", NewRouter(uc, token, events, logger))
	return r
}
