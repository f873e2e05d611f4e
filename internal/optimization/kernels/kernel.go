package kernels

import (
	"fmt"
	"math"
	"strings"
)

// Kernel represents a kernel function for Gaussian Processes
type Kernel interface {
	// Eval computes the kernel value between two points x1 and x2
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters
	SetHyperparameters(params []float64) error
}

// Names accepted by New.
const (
	RBF      = "rbf"
	Matern52 = "matern52"
)

// New builds the kernel registered under name with the given length scale
// and signal variance. Names are case-insensitive.
func New(name string, lengthScale, signalVar float64) (Kernel, error) {
	if lengthScale <= 0 || signalVar <= 0 {
		return nil, fmt.Errorf("kernel hyperparameters must be positive, got lengthScale=%v signalVar=%v", lengthScale, signalVar)
	}
	switch strings.ToLower(name) {
	case RBF, "":
		return NewRBFKernel(lengthScale, signalVar), nil
	case Matern52:
		return NewMatern52Kernel(lengthScale, signalVar), nil
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}

// RBFKernel implements the Radial Basis Function (squared exponential) kernel
//
//	k(x1, x2) = signalVar * exp(-|x1-x2|^2 / (2 * lengthScale^2))
type RBFKernel struct {
	params
}

// NewRBFKernel creates a new RBF kernel with the given parameters
func NewRBFKernel(lengthScale, signalVar float64) *RBFKernel {
	return &RBFKernel{params: newParams(lengthScale, signalVar)}
}

// Eval computes the RBF kernel value between x1 and x2
func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	r2 := sqDist(x1, x2) / (2.0 * k.lengthScale * k.lengthScale)
	return k.signalVar * math.Exp(-r2)
}

// Matern52Kernel implements the Matérn 5/2 kernel
type Matern52Kernel struct {
	params
}

// NewMatern52Kernel creates a new Matérn 5/2 kernel with the given parameters
func NewMatern52Kernel(lengthScale, signalVar float64) *Matern52Kernel {
	return &Matern52Kernel{params: newParams(lengthScale, signalVar)}
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2
func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(sqDist(x1, x2)) / k.lengthScale
	polyTerm := 1.0 + math.Sqrt(5)*r + (5.0/3.0)*r*r
	expTerm := math.Exp(-math.Sqrt(5) * r)
	return k.signalVar * polyTerm * expTerm
}

// params holds the isotropic length scale and the signal variance shared by
// both kernels.
type params struct {
	// Length scale parameter (larger = smoother function)
	lengthScale float64
	// Signal variance (controls the amplitude of the function)
	signalVar float64
}

func newParams(lengthScale, signalVar float64) params {
	if lengthScale <= 0 {
		panic(fmt.Sprintf("lengthScale must be positive, got %v", lengthScale))
	}
	if signalVar <= 0 {
		panic(fmt.Sprintf("signalVar must be positive, got %v", signalVar))
	}
	return params{lengthScale: lengthScale, signalVar: signalVar}
}

// Hyperparameters returns [lengthScale, signalVar].
func (p *params) Hyperparameters() []float64 {
	return []float64{p.lengthScale, p.signalVar}
}

// SetHyperparameters sets [lengthScale, signalVar].
func (p *params) SetHyperparameters(hp []float64) error {
	if len(hp) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(hp))
	}
	if !(hp[0] > 0) || !(hp[1] > 0) || math.IsInf(hp[0], 1) || math.IsInf(hp[1], 1) {
		return fmt.Errorf("hyperparameters must be positive and finite, got %v", hp)
	}
	p.lengthScale = hp[0]
	p.signalVar = hp[1]
	return nil
}

func sqDist(x1, x2 []float64) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := x1[i] - x2[i]
		sumSq += diff * diff
	}
	return sumSq
}
