package server

import (
	"net/http"
	"sync"
	"time"

	apperrors "github.com/copyleftdev/bayesopt/internal/errors"
	"github.com/copyleftdev/bayesopt/internal/optimization/bayesian"
)

// sessionEntry guards one session. bayesian.Session is single-threaded, so
// every access goes through mu.
type sessionEntry struct {
	mu sync.Mutex

	id           string
	session      *bayesian.Session
	createdAt    time.Time
	updatedAt    time.Time
	proposals    int
	lastProposal []float64
}

// sessionStore maps session ids to entries and enforces the session cap.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	max      int
}

func newSessionStore(max int) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*sessionEntry),
		max:      max,
	}
}

func sessionNotFound(id string) *apperrors.Error {
	return apperrors.Errorf("session %q not found", id).WithStatus(http.StatusNotFound)
}

func (st *sessionStore) add(e *sessionEntry) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.max > 0 && len(st.sessions) >= st.max {
		return apperrors.Errorf("session limit of %d reached", st.max).WithStatus(http.StatusTooManyRequests)
	}
	st.sessions[e.id] = e
	return nil
}

func (st *sessionStore) get(id string) (*sessionEntry, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	e, ok := st.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return e, nil
}

func (st *sessionStore) remove(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return sessionNotFound(id)
	}
	delete(st.sessions, id)
	return nil
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// clear drops every session and returns how many there were.
func (st *sessionStore) clear() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := len(st.sessions)
	st.sessions = make(map[string]*sessionEntry)
	return n
}
