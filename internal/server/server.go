// Package server exposes optimization sessions over REST and JSON-RPC 2.0.
//
// A client creates a session with the search bounds, reports observations
// with addSample and asks for the next point to evaluate with next. The
// objective is always evaluated by the client.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/copyleftdev/bayesopt/internal/config"
	"github.com/copyleftdev/bayesopt/internal/logging"
	"github.com/copyleftdev/bayesopt/internal/metrics"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server implements the HTTP and JSON-RPC surface of the optimization
// service. It owns the live sessions.
type Server struct {
	cfg     *config.Config
	logger  Logger
	zlog    *zap.Logger
	metrics *metrics.Metrics

	sessions *sessionStore
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records service metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithZapLogger sets the logger handed to sessions for numerical
// diagnostics. When the server logger is a *logging.Logger it is bridged
// automatically.
func WithZapLogger(l *zap.Logger) Option {
	return func(s *Server) { s.zlog = l }
}

// NewServer creates a new server instance with the given config and logger.
// Without WithMetrics the collectors are registered on a private registry.
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: newSessionStore(cfg.Optimization.MaxSessions),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.zlog == nil {
		if l, ok := logger.(*logging.Logger); ok {
			s.zlog = logging.NewZapLogger(l)
		} else {
			s.zlog = zap.NewNop()
		}
	}
	return s
}

// RegisterRoutes mounts the REST API under /api/v1 and JSON-RPC at /rpc.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSessionStatus)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/samples", s.handleAddSample)
			r.Delete("/samples", s.handleClearSamples)
			r.Post("/next", s.handleNextSample)
			r.Post("/seed", s.handleSeedSession)
		})
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close drops every session.
func (s *Server) Close() error {
	n := s.sessions.clear()
	s.metrics.SessionsActive.Sub(float64(n))
	s.logger.Info("Server closed", map[string]interface{}{"sessions": n})
	return nil
}
