package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/lmsbridge/internal/api/middleware"
	"github.com/kiranshivaraju/lmsbridge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	AnalyzeHandler   http.HandlerFunc
	UploadHandler    http.HandlerFunc
	SubmitJobHandler http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	JobStatusHandler http.HandlerFunc
	JobEntries       http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Route("/api/v1", func(r chi.Router) {
		// Public health check
		r.Get("/health", orNotImplemented(deps.HealthHandler))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.RateLimit.Limit)

			r.Post("/uploads/analyze", orNotImplemented(deps.AnalyzeHandler))
			r.Post("/uploads", orNotImplemented(deps.UploadHandler))

			r.Post("/jobs", orNotImplemented(deps.SubmitJobHandler))
			r.Get("/jobs", orNotImplemented(deps.ListJobsHandler))
			r.Get("/jobs/{jobID}", orNotImplemented(deps.JobStatusHandler))
			r.Get("/jobs/{jobID}/entries", orNotImplemented(deps.JobEntries))
		})
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
