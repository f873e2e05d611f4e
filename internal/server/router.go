package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/copyleftdev/bayesopt/internal/errors"
	"github.com/copyleftdev/bayesopt/internal/logging"
)

// NewRouter wires the middleware stack, /healthz, /metrics and the server
// routes. metricsHandler may be nil.
func NewRouter(srv *Server, logger *logging.Logger, metricsHandler http.Handler, timeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(apperrors.RecoveryMiddleware(logger))
	r.Use(apperrors.ErrorHandler(logger))
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": srv.sessions.len(),
		})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	srv.RegisterRoutes(r)
	return r
}
