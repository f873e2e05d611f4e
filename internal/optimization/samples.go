package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sample is one observation: an input point and the objective output(s)
// measured there. Scalar objectives use a one-element Y.
type Sample struct {
	X []float64
	Y []float64
}

// SampleStore is an append-only, insertion-ordered collection of samples.
// Every input has the store's dimensionality and every output has the width
// fixed by the first sample added.
type SampleStore struct {
	dims    int
	width   int
	samples []Sample
}

// NewSampleStore creates an empty store for inputs of length dims.
func NewSampleStore(dims int) *SampleStore {
	return &SampleStore{dims: dims}
}

// Add validates and appends a sample. The vectors are copied.
func (s *SampleStore) Add(x, y []float64) error {
	const op = "SampleStore.Add"

	if len(x) != s.dims {
		return dimensionError(op, "x", len(x), s.dims)
	}
	if len(y) == 0 {
		return dimensionError(op, "y", 0, max(s.width, 1))
	}
	if s.width != 0 && len(y) != s.width {
		return dimensionError(op, "y", len(y), s.width)
	}
	if !allFinite(x) || !allFinite(y) {
		return WrapError(ErrInvalidParameter, "sample contains NaN or Inf").
			WithOperation(op).WithComponent("optimization")
	}
	if s.width == 0 {
		s.width = len(y)
	}
	s.samples = append(s.samples, Sample{
		X: append([]float64(nil), x...),
		Y: append([]float64(nil), y...),
	})
	return nil
}

// Len returns the number of stored samples.
func (s *SampleStore) Len() int {
	return len(s.samples)
}

// Dims returns the input dimensionality.
func (s *SampleStore) Dims() int {
	return s.dims
}

// Width returns the output width, or 0 when the store is empty.
func (s *SampleStore) Width() int {
	return s.width
}

// Clear removes every sample and releases the output width.
func (s *SampleStore) Clear() {
	s.samples = nil
	s.width = 0
}

// Samples returns copies of the stored samples in insertion order.
func (s *SampleStore) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	for i, smp := range s.samples {
		out[i] = Sample{
			X: append([]float64(nil), smp.X...),
			Y: append([]float64(nil), smp.Y...),
		}
	}
	return out
}

// Best returns the sample with the largest first output and false when the
// store is empty.
func (s *SampleStore) Best() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	best := 0
	for i, smp := range s.samples {
		if smp.Y[0] > s.samples[best].Y[0] {
			best = i
		}
	}
	smp := s.samples[best]
	return Sample{
		X: append([]float64(nil), smp.X...),
		Y: append([]float64(nil), smp.Y...),
	}, true
}

// Matrices assembles the inputs into an n×d matrix and the outputs into an
// n×w matrix, rows in insertion order. It returns ErrNoSamples when empty.
func (s *SampleStore) Matrices() (*mat.Dense, *mat.Dense, error) {
	if len(s.samples) == 0 {
		return nil, nil, WrapError(ErrNoSamples, "cannot assemble training data").
			WithOperation("SampleStore.Matrices").WithComponent("optimization")
	}

	X := mat.NewDense(len(s.samples), s.dims, nil)
	Y := mat.NewDense(len(s.samples), s.width, nil)
	for i, smp := range s.samples {
		X.SetRow(i, smp.X)
		Y.SetRow(i, smp.Y)
	}
	return X, Y, nil
}

func allFinite(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
