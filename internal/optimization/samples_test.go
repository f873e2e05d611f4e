package optimization_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/bayesopt/internal/optimization"
	"github.com/copyleftdev/bayesopt/internal/optimization/optimizationtest"
)

func TestSampleStoreAdd(t *testing.T) {
	tests := []struct {
		name    string
		x, y    []float64
		wantErr error
	}{
		{name: "valid", x: []float64{1, 2}, y: []float64{3}},
		{name: "short input", x: []float64{1}, y: []float64{3}, wantErr: optimization.ErrDimensionMismatch},
		{name: "long input", x: []float64{1, 2, 3}, y: []float64{3}, wantErr: optimization.ErrDimensionMismatch},
		{name: "empty output", x: []float64{1, 2}, y: nil, wantErr: optimization.ErrDimensionMismatch},
		{name: "NaN input", x: []float64{math.NaN(), 2}, y: []float64{3}, wantErr: optimization.ErrInvalidParameter},
		{name: "infinite output", x: []float64{1, 2}, y: []float64{math.Inf(-1)}, wantErr: optimization.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := optimization.NewSampleStore(2)
			err := store.Add(tt.x, tt.y)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 1, store.Len())
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestSampleStoreOutputWidth(t *testing.T) {
	store := optimization.NewSampleStore(1)
	assert.Equal(t, 0, store.Width())

	require.NoError(t, store.Add([]float64{0}, []float64{1, 2}))
	assert.Equal(t, 2, store.Width())

	err := store.Add([]float64{1}, []float64{1})
	assert.True(t, errors.Is(err, optimization.ErrDimensionMismatch))

	store.Clear()
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.Width())
	require.NoError(t, store.Add([]float64{1}, []float64{1}), "Clear releases the output width")
}

func TestSampleStoreCopiesVectors(t *testing.T) {
	store := optimization.NewSampleStore(2)
	x, y := []float64{1, 2}, []float64{3}
	require.NoError(t, store.Add(x, y))
	x[0], y[0] = 100, 100

	samples := store.Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, []float64{1, 2}, samples[0].X)
	assert.Equal(t, []float64{3}, samples[0].Y)

	samples[0].X[1] = -1
	assert.Equal(t, 2.0, store.Samples()[0].X[1])
}

func TestSampleStoreMatrices(t *testing.T) {
	store := optimization.NewSampleStore(2)

	_, _, err := store.Matrices()
	assert.True(t, errors.Is(err, optimization.ErrNoSamples))

	require.NoError(t, store.Add([]float64{1, 2}, []float64{10}))
	require.NoError(t, store.Add([]float64{3, 4}, []float64{20}))
	require.NoError(t, store.Add([]float64{5, 6}, []float64{30}))

	X, Y, err := store.Matrices()
	require.NoError(t, err)
	optimizationtest.AssertMatEqual(t, X, mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), 0)
	optimizationtest.AssertMatEqual(t, Y, mat.NewDense(3, 1, []float64{10, 20, 30}), 0)
}

func TestSampleStoreBest(t *testing.T) {
	store := optimization.NewSampleStore(1)
	_, ok := store.Best()
	assert.False(t, ok)

	require.NoError(t, store.Add([]float64{0}, []float64{-1}))
	require.NoError(t, store.Add([]float64{0.5}, []float64{2}))
	require.NoError(t, store.Add([]float64{1}, []float64{-0.5}))
	require.NoError(t, store.Add([]float64{0.7}, []float64{2}))

	best, ok := store.Best()
	require.True(t, ok)
	assert.Equal(t, []float64{0.5}, best.X, "ties keep the earliest sample")
	assert.Equal(t, []float64{2}, best.Y)
}
