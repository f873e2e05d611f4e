package server

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/copyleftdev/bayesopt/internal/optimization"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// CreateSessionRequest opens a session. Omitted fields take the server
// defaults.
type CreateSessionRequest struct {
	Bounds   [][]float64 `json:"bounds" validate:"required,min=1,dive,len=2"`
	Alpha    *float64    `json:"alpha,omitempty" validate:"omitempty,gte=0"`
	Xi       *float64    `json:"xi,omitempty" validate:"omitempty,gte=0"`
	Restarts int         `json:"restarts,omitempty" validate:"gte=0,lte=1000"`
	Seed     *int64      `json:"seed,omitempty"`
	Kernel   string      `json:"kernel,omitempty" validate:"omitempty,oneof=rbf matern52"`
}

func (r CreateSessionRequest) bounds() optimization.Bounds {
	b := make(optimization.Bounds, len(r.Bounds))
	for i, pair := range r.Bounds {
		b[i] = [2]float64{pair[0], pair[1]}
	}
	return b
}

// CreateSessionResponse identifies a new session.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// AddSampleRequest reports one observation. Exactly one of Y and YVector is
// set.
type AddSampleRequest struct {
	X       []float64 `json:"x" validate:"required,min=1"`
	Y       *float64  `json:"y,omitempty" validate:"required_without=YVector,excluded_with=YVector"`
	YVector []float64 `json:"y_vector,omitempty" validate:"omitempty,min=1"`
}

func (r AddSampleRequest) outputs() []float64 {
	if r.Y != nil {
		return []float64{*r.Y}
	}
	return r.YVector
}

// AddSampleResponse reports the session size after the sample was stored.
type AddSampleResponse struct {
	Samples int `json:"samples"`
}

// SeedRequest reseeds the session's random source.
type SeedRequest struct {
	Seed *int64 `json:"seed" validate:"required"`
}

// SampleDTO is an observation as returned to clients.
type SampleDTO struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// SessionStatus describes a session.
type SessionStatus struct {
	SessionID    string              `json:"session_id"`
	Bounds       optimization.Bounds `json:"bounds"`
	Alpha        float64             `json:"alpha"`
	Xi           float64             `json:"xi"`
	Restarts     int                 `json:"restarts"`
	Samples      int                 `json:"samples"`
	Best         *SampleDTO          `json:"best,omitempty"`
	Proposals    int                 `json:"proposals"`
	LastProposal []float64           `json:"last_proposal,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ProposalResponse is the next point to evaluate.
type ProposalResponse struct {
	X                   []float64 `json:"x"`
	ExpectedImprovement float64   `json:"expected_improvement"`
	FeasibleRestarts    int       `json:"feasible_restarts"`
	DurationMS          float64   `json:"duration_ms"`
}

// sessionRef names a session in JSON-RPC params.
type sessionRef struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
}

type addSampleParams struct {
	sessionRef
	AddSampleRequest
}

type seedParams struct {
	sessionRef
	SeedRequest
}
