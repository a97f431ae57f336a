package api

import (
	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/sessionpilot/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()

	// Mutating endpoints are rate limited per user.
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))
	limited.HandleFunc("/sessions", h.StartOnboard).Methods("POST")
	limited.HandleFunc("/sessions/{id}/confirm", h.ConfirmOnboard).Methods("POST")
	limited.HandleFunc("/sessions/{id}", h.DeleteSession).Methods("DELETE")
	limited.HandleFunc("/runs", h.StartRun).Methods("POST")

	// Read endpoints (not rate limited - frequent polling)
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/events", h.RunEvents).Methods("GET")
	api.HandleFunc("/healthz", h.Health).Methods("GET")

	r.Use(corsMiddleware)

	return r
}
