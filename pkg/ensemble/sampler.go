package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/hed1ad/autosad/pkg/detectors"
)

// Exploration bounds for the sampler's spread multiplier.
const (
	DefaultExplorationSigma = 1.0
	minExplorationSigma     = 0.1
	maxExplorationSigma     = 2.0
)

// Sampler perturbs hyperparameters around their current value. It draws
// all randomness from the ensemble's generator.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler drawing from rng.
func NewSampler(rng *rand.Rand) *Sampler {
	return &Sampler{rng: rng}
}

// Sample draws a new value for spec near current. sigma scales the spread
// of numeric draws and the chance of leaving a categorical value.
func (s *Sampler) Sample(spec detectors.ParamSpec, current detectors.Value, sigma float64) detectors.Value {
	if spec.Len() == 0 {
		return current
	}
	if spec.Kind == detectors.KindChoice {
		return s.sampleChoice(spec, current, sigma)
	}
	return s.sampleNumeric(spec, current, sigma)
}

// sampleNumeric draws from a normal centred on current with standard
// deviation std(grid)*sigma, truncated to the grid range, and snaps the
// draw to the nearest grid value.
func (s *Sampler) sampleNumeric(spec detectors.ParamSpec, current detectors.Value, sigma float64) detectors.Value {
	grid := spec.Numbers()
	x, ok := s.truncatedNormal(current.Numeric(), stat.PopStdDev(grid, nil)*sigma, floats.Min(grid), floats.Max(grid))
	if !ok {
		return spec.At(s.rng.IntN(spec.Len()))
	}
	return spec.At(nearest(grid, x))
}

// truncatedNormal samples N(mu, sd) restricted to [lo, hi] by inverting
// the CDF. It reports false when the distribution is degenerate.
func (s *Sampler) truncatedNormal(mu, sd, lo, hi float64) (float64, bool) {
	if !(sd > 0) || math.IsInf(sd, 0) || !(hi >= lo) {
		return 0, false
	}
	n := distuv.Normal{Mu: mu, Sigma: sd}
	pLo, pHi := n.CDF(lo), n.CDF(hi)
	if !(pHi > pLo) {
		return 0, false
	}
	x := n.Quantile(pLo + s.rng.Float64()*(pHi-pLo))
	if math.IsNaN(x) {
		return 0, false
	}
	return math.Max(lo, math.Min(hi, x)), true
}

// sampleChoice keeps current with probability max(0.5, 1-0.5*sigma) and
// otherwise picks uniformly among the other options.
func (s *Sampler) sampleChoice(spec detectors.ParamSpec, current detectors.Value, sigma float64) detectors.Value {
	n := spec.Len()
	cur := spec.Index(current)
	if n == 1 {
		return spec.At(0)
	}
	if cur < 0 {
		return spec.At(s.rng.IntN(n))
	}

	keep := math.Max(0.5, 1-0.5*sigma)
	if s.rng.Float64() < keep {
		return current
	}
	k := s.rng.IntN(n - 1)
	if k >= cur {
		k++
	}
	return spec.At(k)
}

// RandomParams draws a uniform value for every parameter of grid.
func (s *Sampler) RandomParams(grid detectors.Grid) detectors.Params {
	p := make(detectors.Params, len(grid))
	for _, spec := range grid {
		p[spec.Name] = spec.At(s.rng.IntN(spec.Len()))
	}
	return p
}

// Perturb samples every parameter of grid around its value in current.
// A grid parameter missing from current means the grid and configuration
// have diverged, which is a programming error, so it panics.
func (s *Sampler) Perturb(grid detectors.Grid, current detectors.Params, sigma float64) detectors.Params {
	next := current.Clone()
	for _, spec := range grid {
		v, ok := current[spec.Name]
		if !ok {
			panic(fmt.Sprintf("ensemble: configuration inconsistency: parameter %q missing from %s", spec.Name, current))
		}
		next[spec.Name] = s.Sample(spec, v, sigma)
	}
	return next
}

// Mutate returns a new arm of the same variant whose parameters are
// sampled around those of a. Scaling carries over unchanged and the
// detector is built fresh.
func (s *Sampler) Mutate(a *Arm, sigma float64) *Arm {
	params := s.Perturb(detectors.GridFor(a.Variant), a.Params, sigma)
	return newArm(a.Variant, params, a.Scaling, s.rng.Uint64())
}

// Random returns an arm of a uniformly drawn variant with uniformly drawn
// parameters.
func (s *Sampler) Random(variants []detectors.Variant, scaling detectors.Scaling) *Arm {
	v := variants[s.rng.IntN(len(variants))]
	params := s.RandomParams(detectors.GridFor(v))
	return newArm(v, params, scaling, s.rng.Uint64())
}

// nearest returns the index of the grid value closest to x, the first one
// on ties.
func nearest(grid []float64, x float64) int {
	best := 0
	for i := 1; i < len(grid); i++ {
		if math.Abs(grid[i]-x) < math.Abs(grid[best]-x) {
			best = i
		}
	}
	return best
}
