package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestKernelEval(t *testing.T) {
	sqrt5 := math.Sqrt(5)

	tests := []struct {
		name   string
		kernel Kernel
		x1, x2 []float64
		want   float64
	}{
		{name: "rbf same point", kernel: NewRBFKernel(1, 1), x1: []float64{1, 2}, x2: []float64{1, 2}, want: 1},
		{name: "rbf unit distance squared 2", kernel: NewRBFKernel(1, 1), x1: []float64{0, 0}, x2: []float64{1, 1}, want: math.Exp(-1)},
		{name: "rbf length scale", kernel: NewRBFKernel(2, 1), x1: []float64{0, 0}, x2: []float64{2, 2}, want: math.Exp(-1)},
		{name: "rbf signal variance", kernel: NewRBFKernel(1, 3), x1: []float64{0}, x2: []float64{0}, want: 3},
		{name: "matern same point", kernel: NewMatern52Kernel(1, 1), x1: []float64{1, 2}, x2: []float64{1, 2}, want: 1},
		{
			name:   "matern distance sqrt 2",
			kernel: NewMatern52Kernel(1, 1),
			x1:     []float64{0, 0},
			x2:     []float64{1, 1},
			want:   (1 + sqrt5*math.Sqrt2 + 5.0/3.0*2) * math.Exp(-sqrt5*math.Sqrt2),
		},
		{
			name:   "matern length scale and variance",
			kernel: NewMatern52Kernel(0.5, 2),
			x1:     []float64{0},
			x2:     []float64{1},
			want:   2 * (1 + sqrt5*2 + 5.0/3.0*4) * math.Exp(-sqrt5*2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.kernel.Eval(tt.x1, tt.x2)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.Equal(t, got, tt.kernel.Eval(tt.x2, tt.x1), "kernel must be symmetric")
		})
	}
}

func TestKernelsDecayWithDistance(t *testing.T) {
	for _, k := range []Kernel{NewRBFKernel(1, 1), NewMatern52Kernel(1, 1)} {
		prev := k.Eval([]float64{0}, []float64{0})
		for _, d := range []float64{0.1, 0.5, 1, 2, 5} {
			v := k.Eval([]float64{0}, []float64{d})
			assert.Less(t, v, prev, "%T at distance %v", k, d)
			assert.Greater(t, v, 0.0)
			prev = v
		}
	}
}

func TestGramMatrixIsPositiveDefinite(t *testing.T) {
	points := [][]float64{{0, 0}, {0.3, 1}, {1, -0.5}, {2, 2}, {-1, 0.7}}

	for _, k := range []Kernel{NewRBFKernel(0.8, 1.5), NewMatern52Kernel(1.2, 0.7)} {
		n := len(points)
		K := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				K.SetSym(i, j, k.Eval(points[i], points[j]))
			}
		}
		var chol mat.Cholesky
		assert.True(t, chol.Factorize(K), "%T Gram matrix", k)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		kernel  string
		ls, sv  float64
		want    Kernel
		wantErr string
	}{
		{name: "rbf", kernel: "rbf", ls: 1, sv: 2, want: NewRBFKernel(1, 2)},
		{name: "default is rbf", kernel: "", ls: 1, sv: 1, want: NewRBFKernel(1, 1)},
		{name: "case insensitive", kernel: "Matern52", ls: 0.5, sv: 1, want: NewMatern52Kernel(0.5, 1)},
		{name: "unknown", kernel: "periodic", ls: 1, sv: 1, wantErr: `unknown kernel "periodic"`},
		{name: "non-positive length scale", kernel: "rbf", ls: 0, sv: 1, wantErr: "must be positive"},
		{name: "non-positive variance", kernel: "matern52", ls: 1, sv: -1, wantErr: "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := New(tt.kernel, tt.ls, tt.sv)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, k)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}
}

func TestConstructorsPanicOnInvalidParameters(t *testing.T) {
	assert.Panics(t, func() { NewRBFKernel(0, 1) })
	assert.Panics(t, func() { NewRBFKernel(1, 0) })
	assert.Panics(t, func() { NewMatern52Kernel(-1, 1) })
	assert.NotPanics(t, func() { NewMatern52Kernel(1e-3, 1e3) })
}

func TestSetHyperparameters(t *testing.T) {
	tests := []struct {
		name    string
		params  []float64
		wantErr bool
	}{
		{name: "valid", params: []float64{2, 3}},
		{name: "too few", params: []float64{1}, wantErr: true},
		{name: "too many", params: []float64{1, 2, 3}, wantErr: true},
		{name: "zero length scale", params: []float64{0, 1}, wantErr: true},
		{name: "negative variance", params: []float64{1, -1}, wantErr: true},
		{name: "nan", params: []float64{math.NaN(), 1}, wantErr: true},
		{name: "inf", params: []float64{1, math.Inf(1)}, wantErr: true},
	}

	for _, tt := range tests {
		for _, k := range []Kernel{NewRBFKernel(1, 1), NewMatern52Kernel(1, 1)} {
			t.Run(tt.name, func(t *testing.T) {
				err := k.SetHyperparameters(tt.params)
				if tt.wantErr {
					assert.Error(t, err)
					assert.Equal(t, []float64{1, 1}, k.Hyperparameters(), "failed update leaves parameters untouched")
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.params, k.Hyperparameters())
			})
		}
	}
}
