package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/labubify/internal/api/middleware"
	"github.com/kiranshivaraju/labubify/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler           http.HandlerFunc
	TransformHandler        http.HandlerFunc
	PredictionStatusHandler http.HandlerFunc
	HistoryHandler          http.HandlerFunc
	TransformationHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}
		r.Post("/api/transform", orNotImplemented(deps.TransformHandler))
	})

	r.Get("/api/transform/predictions/{predictionID}", orNotImplemented(deps.PredictionStatusHandler))

	// Operator routes
	r.Group(func(r chi.Router) {
		auth := deps.Auth
		if auth == nil {
			auth = mw.NewAuth("")
		}
		r.Use(auth.RequireAdmin)

		r.Get("/api/transformations", orNotImplemented(deps.HistoryHandler))
		r.Get("/api/transformations/{transformationID}", orNotImplemented(deps.TransformationHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}
