package api

import (
	"net/http"

	mw "github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	JWTAuth    *mw.JWTAuth
	RateLimit  *mw.RateLimit
	CronSecret string

	HealthHandler       http.HandlerFunc
	MetricsHandler      http.Handler
	ProcessQueueHandler http.HandlerFunc
	CompletionHandler   http.HandlerFunc
	EnqueueHandler      http.HandlerFunc
	StatusHandler       http.HandlerFunc
	RetryFailedHandler  http.HandlerFunc
	QueueStatsHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Scheduler trigger and analyzer callback, shared-secret auth
	r.Group(func(r chi.Router) {
		r.Use(mw.SecretAuth(deps.CronSecret))

		r.Get("/api/v1/queue/process", orNotImplemented(deps.ProcessQueueHandler))
		r.Post("/api/v1/queue/process", orNotImplemented(deps.ProcessQueueHandler))
		r.Post("/api/v1/internal/analysis-complete", orNotImplemented(deps.CompletionHandler))
	})

	// User-facing routes
	r.Group(func(r chi.Router) {
		r.Use(deps.JWTAuth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/videos/{videoID}/queue", orNotImplemented(deps.EnqueueHandler))
		r.Get("/api/v1/videos/{videoID}/status", orNotImplemented(deps.StatusHandler))
		r.Post("/api/v1/videos/retry-failed", orNotImplemented(deps.RetryFailedHandler))
		r.Get("/api/v1/queue/stats", orNotImplemented(deps.QueueStatsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
