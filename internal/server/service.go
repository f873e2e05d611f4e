package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/bayesopt/internal/errors"
	"github.com/copyleftdev/bayesopt/internal/metrics"
	"github.com/copyleftdev/bayesopt/internal/optimization"
	"github.com/copyleftdev/bayesopt/internal/optimization/bayesian"
)

// statusFor maps an error to the HTTP status reported to clients.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, optimization.ErrModelFit),
		errors.Is(err, optimization.ErrNoFeasibleProposal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, optimization.ErrNoSamples),
		errors.Is(err, optimization.ErrDimensionMismatch),
		errors.Is(err, optimization.ErrInvalidBounds),
		errors.Is(err, optimization.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &appErr):
		return apperrors.HTTPStatus(err)
	default:
		return http.StatusInternalServerError
	}
}

// apiError attaches the client-facing status to err.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.New(validationMessage(verrs)).WithStatus(http.StatusBadRequest)
	}
	return apperrors.Wrap(err, "").WithStatus(statusFor(err))
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return apiError(err)
	}
	return nil
}

// proposalResult classifies a NextSample outcome for metrics.
func proposalResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, optimization.ErrNoSamples):
		return metrics.ResultNoSamples
	case errors.Is(err, optimization.ErrModelFit):
		return metrics.ResultFitFailed
	case errors.Is(err, optimization.ErrNoFeasibleProposal):
		return metrics.ResultInfeasible
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	default:
		return metrics.ResultError
	}
}

// CreateSession opens a new session.
func (s *Server) CreateSession(req CreateSessionRequest) (*CreateSessionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	opt := s.cfg.Optimization
	alpha, xi := opt.Alpha, opt.Xi
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	if req.Xi != nil {
		xi = *req.Xi
	}
	restarts := opt.Restarts
	if req.Restarts > 0 {
		restarts = req.Restarts
	}
	kernel := opt.Kernel
	if req.Kernel != "" {
		kernel = req.Kernel
	}

	id := uuid.New().String()
	opts := []bayesian.Option{
		bayesian.WithKernel(kernel),
		bayesian.WithFitHyperparameters(opt.FitHyperparameters),
		bayesian.WithRestarts(restarts),
		bayesian.WithPenalty(opt.Penalty),
		bayesian.WithLBFGS(opt.LBFGSMaxIterations, opt.LBFGSEpsilon),
		bayesian.WithLogger(s.zlog.With(zap.String("session_id", id))),
	}
	if req.Seed != nil {
		opts = append(opts, bayesian.WithSeed(*req.Seed))
	}

	session, err := bayesian.NewSession(req.bounds(), alpha, xi, opts...)
	if err != nil {
		return nil, apiError(err)
	}

	now := time.Now().UTC()
	entry := &sessionEntry{id: id, session: session, createdAt: now, updatedAt: now}
	if err := s.sessions.add(entry); err != nil {
		return nil, err
	}
	s.metrics.SessionsActive.Inc()

	s.logger.Info("Session created", map[string]interface{}{
		"session_id": id,
		"dims":       len(req.Bounds),
		"kernel":     kernel,
		"restarts":   restarts,
	})
	return &CreateSessionResponse{SessionID: id}, nil
}

// SessionStatus describes the session with the given id.
func (s *Server) SessionStatus(id string) (*SessionStatus, error) {
	entry, err := s.sessions.get(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	status := &SessionStatus{
		SessionID:    entry.id,
		Bounds:       entry.session.Bounds(),
		Alpha:        entry.session.Alpha(),
		Xi:           entry.session.Xi(),
		Restarts:     entry.session.Restarts(),
		Samples:      entry.session.Len(),
		Proposals:    entry.proposals,
		LastProposal: append([]float64(nil), entry.lastProposal...),
		CreatedAt:    entry.createdAt,
		UpdatedAt:    entry.updatedAt,
	}
	if best, ok := entry.session.Best(); ok {
		status.Best = &SampleDTO{X: best.X, Y: best.Y}
	}
	return status, nil
}

// DeleteSession discards a session.
func (s *Server) DeleteSession(id string) error {
	if err := s.sessions.remove(id); err != nil {
		return err
	}
	s.metrics.SessionsActive.Dec()
	s.logger.Info("Session deleted", map[string]interface{}{"session_id": id})
	return nil
}

// AddSample records an observation in the session.
func (s *Server) AddSample(id string, req AddSampleRequest) (*AddSampleResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	entry, err := s.sessions.get(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := entry.session.AddSampleVector(req.X, req.outputs()); err != nil {
		return nil, apiError(err)
	}
	entry.updatedAt = time.Now().UTC()
	s.metrics.SamplesTotal.Inc()
	return &AddSampleResponse{Samples: entry.session.Len()}, nil
}

// ClearSamples empties the session's observations. Settings are kept.
func (s *Server) ClearSamples(id string) error {
	entry, err := s.sessions.get(id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.session.Clear()
	entry.lastProposal = nil
	entry.updatedAt = time.Now().UTC()
	return nil
}

// SeedSession reseeds the session's random source.
func (s *Server) SeedSession(id string, req SeedRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	entry, err := s.sessions.get(id)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.session.Seed(*req.Seed)
	entry.updatedAt = time.Now().UTC()
	return nil
}

// NextSample fits the surrogate and returns the point maximizing expected
// improvement. Cancelling ctx stops the restart loop.
func (s *Server) NextSample(ctx context.Context, id string) (*ProposalResponse, error) {
	entry, err := s.sessions.get(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	start := time.Now()
	proposal, err := entry.session.Propose(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveProposal(proposalResult(err), elapsed)
	if err != nil {
		s.logger.Warn("Proposal failed", map[string]interface{}{
			"session_id": id,
			"error":      err.Error(),
		})
		return nil, apiError(err)
	}

	entry.proposals++
	entry.lastProposal = append([]float64(nil), proposal.X...)
	entry.updatedAt = time.Now().UTC()

	s.logger.Debug("Proposal computed", map[string]interface{}{
		"session_id":           id,
		"expected_improvement": proposal.ExpectedImprovement,
		"feasible_restarts":    proposal.Feasible,
		"latency_ms":           float64(elapsed.Microseconds()) / 1000.0,
	})
	return &ProposalResponse{
		X:                   proposal.X,
		ExpectedImprovement: proposal.ExpectedImprovement,
		FeasibleRestarts:    proposal.Feasible,
		DurationMS:          float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}
