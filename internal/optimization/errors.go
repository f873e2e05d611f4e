package optimization

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes callers are expected to branch on.
// Wrap them with Error to attach context; errors.Is still matches.
var (
	// ErrNoSamples is returned when a proposal is requested before any
	// sample has been observed.
	ErrNoSamples = errors.New("no samples observed")
	// ErrDimensionMismatch is returned when an input or output vector does
	// not match the dimensionality fixed by the bounds or earlier samples.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidBounds is returned for empty bounds, inverted intervals or
	// non-finite endpoints.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrInvalidParameter is returned for out-of-range tuning parameters
	// such as a negative xi or alpha.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrModelFit is returned when the surrogate model cannot be fitted.
	ErrModelFit = errors.New("model fit failed")
	// ErrNoFeasibleProposal is returned when no restart of the proposer
	// produced a finite objective at a point inside the bounds.
	ErrNoFeasibleProposal = errors.New("no feasible proposal")
)

// Error is an optimization failure annotated with where it happened. It
// renders as "component: op: message: cause", omitting empty parts.
type Error struct {
	Message   string
	Op        string
	Component string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{e.Component, e.Op, e.Message} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation sets the failing operation and returns e.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent sets the failing component and returns e.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

func NewError(message string) *Error {
	return &Error{Message: message}
}

func NewErrorf(format string, args ...any) *Error {
	return NewError(fmt.Sprintf(format, args...))
}

// WrapError annotates err. A nil err yields nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Message: message, Err: err}
}

// WrapErrorf is WrapError with a formatted message.
func WrapErrorf(err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return WrapError(err, fmt.Sprintf(format, args...))
}

// IsOptimizationError reports whether err, or any error it wraps, is an
// *Error and returns the outermost one.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// dimensionError builds the error reported for vectors of the wrong length.
func dimensionError(op, what string, got, want int) *Error {
	return WrapErrorf(ErrDimensionMismatch, "%s has %d components, want %d", what, got, want).
		WithOperation(op).
		WithComponent("optimization")
}
