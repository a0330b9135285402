// Package api provides the HTTP server for Breathe.
// Every mutating user route runs an achievement evaluation before it
// responds, so clients see new unlocks in the same round trip.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/breathe-app/breathe/internal/app/engagement"
	"github.com/breathe-app/breathe/internal/domain"
	"github.com/breathe-app/breathe/internal/health"
	"github.com/breathe-app/breathe/internal/infra/push"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// Server is the Breathe HTTP API server.
type Server struct {
	engine         *engagement.Engine
	checker        *health.Checker
	retries        *push.RetryQueue
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(engine *engagement.Engine) *Server {
	return &Server{engine: engine}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealthChecker makes /health report the checker's latest results.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// SetPushRetries adds the push retry queue's counters to /health.
func (s *Server) SetPushRetries(q *push.RetryQueue) { s.retries = q }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/achievements", s.handleCatalog)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handlePutProfile)

			r.Post("/logs", s.handleSaveLog)
			r.Get("/logs", s.handleListLogs)
			r.Get("/streak", s.handleStreak)
			r.Get("/snapshot", s.handleSnapshot)
			r.Post("/evaluate", s.handleEvaluate)

			r.Get("/achievements", s.handleAchievements)
			r.Get("/achievements/{id}", s.handleAchievement)
			r.Post("/achievements/{id}/seen", s.handleAchievementSeen)

			r.Post("/events/ai-message", s.handleAIMessage)
			r.Post("/events/audio-session", s.handleAudioSession)
			r.Post("/challenges/{id}/complete", s.handleCompleteChallenge)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/{id}/shown", s.handleNotificationShown)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	code := http.StatusOK
	resp := map[string]interface{}{"status": "ok"}
	if s.checker != nil {
		if !s.checker.IsHealthy() {
			code, resp["status"] = http.StatusServiceUnavailable, "degraded"
		}
		resp["checks"] = s.checker.Statuses()
	}
	if s.retries != nil {
		resp["push_retries"] = s.retries.Stats()
	}
	writeJSON(w, code, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeDomainError maps a service error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidLog),
		errors.Is(err, domain.ErrInvalidProfile),
		errors.Is(err, domain.ErrUnknownMetric):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownAchievement),
		errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func errorType(status int) string {
	switch {
	case status == http.StatusForbidden:
		return "permission_denied"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= 500:
		return "server_error"
	}
	return "invalid_request"
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
