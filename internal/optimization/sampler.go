package optimization

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// BoundedSampler draws points uniformly from a box. Bounds are assumed to be
// valid (see Bounds.Validate); the sampler does not check them.
//
// Draws consume the shared source, so two samplers built on identically
// seeded sources produce the same sequence.
type BoundedSampler struct {
	dists []distuv.Uniform
	rng   *rand.Rand
}

// NewBoundedSampler creates a sampler over bounds that reads entropy from src.
func NewBoundedSampler(bounds Bounds, src rand.Source) *BoundedSampler {
	dists := make([]distuv.Uniform, len(bounds))
	for i, b := range bounds {
		dists[i] = distuv.Uniform{Min: b[0], Max: b[1], Src: src}
	}
	return &BoundedSampler{
		dists: dists,
		rng:   rand.New(src),
	}
}

// Dims returns the dimensionality of the sampled points.
func (s *BoundedSampler) Dims() int {
	return len(s.dists)
}

// Sample returns one point with each coordinate drawn independently from
// U[low_i, high_i].
func (s *BoundedSampler) Sample() []float64 {
	x := make([]float64, len(s.dists))
	for i := range s.dists {
		x[i] = s.dists[i].Rand()
	}
	return x
}

// LatinHypercube returns n points such that, in every dimension, each of the
// n equal-width strata of the interval holds exactly one point.
func (s *BoundedSampler) LatinHypercube(n int) [][]float64 {
	if n <= 0 {
		return nil
	}
	nDims := len(s.dists)
	samples := make([][]float64, n)
	for j := range samples {
		samples[j] = make([]float64, nDims)
	}

	strata := make([]float64, n)
	for i, d := range s.dists {
		for j := range strata {
			strata[j] = (float64(j) + s.rng.Float64()) / float64(n)
		}
		s.rng.Shuffle(n, func(k, l int) {
			strata[k], strata[l] = strata[l], strata[k]
		})
		for j := range samples {
			samples[j][i] = d.Min + strata[j]*(d.Max-d.Min)
		}
	}
	return samples
}
