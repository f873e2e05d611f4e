package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/copyleftdev/bayesopt/internal/errors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  status,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(err, "invalid request body").WithStatus(http.StatusBadRequest)
	}
	return nil
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.CreateSession(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleSessionStatus handles GET /api/v1/sessions/{id}
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.SessionStatus(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDeleteSession handles DELETE /api/v1/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteSession(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddSample handles POST /api/v1/sessions/{id}/samples
func (s *Server) handleAddSample(w http.ResponseWriter, r *http.Request) {
	var req AddSampleRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.AddSample(chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClearSamples handles DELETE /api/v1/sessions/{id}/samples
func (s *Server) handleClearSamples(w http.ResponseWriter, r *http.Request) {
	if err := s.ClearSamples(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNextSample handles POST /api/v1/sessions/{id}/next
func (s *Server) handleNextSample(w http.ResponseWriter, r *http.Request) {
	resp, err := s.NextSample(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSeedSession handles POST /api/v1/sessions/{id}/seed
func (s *Server) handleSeedSession(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.SeedSession(chi.URLParam(r, "id"), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
