// Package loda implements LODA (Lightweight On-line Detector of Anomalies).
//
// Samples are projected onto sparse random directions. Each projection
// keeps a sparse fixed-width histogram whose bin width is derived from the
// first sample and the bin count; the score is the mean negative log
// density across projections.
package loda

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/hed1ad/autosad/pkg/detectors"
)

var _ detectors.Detector = (*Detector)(nil)

const minDensity = 1e-12

// Detector is a streaming LODA ensemble.
type Detector struct {
	nBins int
	nCuts int
	rng   *rand.Rand

	initialized bool
	projections [][]float64
	counts      []map[int]float64
	totals      []float64
	origin      []float64
	width       []float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithBins sets the number of histogram bins per projection.
func WithBins(n int) Option {
	return func(d *Detector) { d.nBins = n }
}

// WithRandomCuts sets the number of random projections.
func WithRandomCuts(n int) Option {
	return func(d *Detector) { d.nCuts = n }
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed uint64) Option {
	return func(d *Detector) {
		d.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates a LODA detector with the given options.
func New(opts ...Option) *Detector {
	d := &Detector{
		nBins: 10,
		nCuts: 100,
		rng:   rand.New(rand.NewPCG(42, 42)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.nBins < 1 {
		d.nBins = 1
	}
	if d.nCuts < 1 {
		d.nCuts = 1
	}
	return d
}

// FitScorePartial scores the sample before adding it to the histograms.
func (d *Detector) FitScorePartial(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	score := d.ScorePartial(sample)
	d.FitPartial(sample)
	return score
}

// FitPartial adds one sample to every projection histogram.
func (d *Detector) FitPartial(sample []float64) {
	if len(sample) == 0 {
		return
	}
	if !d.initialized {
		d.init(sample)
	}
	for i, w := range d.projections {
		b := d.bin(i, dot(w, sample))
		d.counts[i][b]++
		d.totals[i]++
	}
}

// ScorePartial returns the mean negative log density of the sample.
// It returns 0 before the first sample.
func (d *Detector) ScorePartial(sample []float64) float64 {
	if !d.initialized {
		return 0
	}
	var score float64
	for i, w := range d.projections {
		b := d.bin(i, dot(w, sample))
		p := minDensity
		if d.totals[i] > 0 {
			p = math.Max(d.counts[i][b]/d.totals[i], minDensity)
		}
		score -= math.Log(p)
	}
	return score / float64(d.nCuts)
}

func (d *Detector) init(first []float64) {
	dims := len(first)
	nonZero := int(math.Sqrt(float64(dims)))
	if nonZero < 1 {
		nonZero = 1
	}

	d.projections = make([][]float64, d.nCuts)
	d.counts = make([]map[int]float64, d.nCuts)
	d.totals = make([]float64, d.nCuts)
	d.origin = make([]float64, d.nCuts)
	d.width = make([]float64, d.nCuts)

	for i := range d.projections {
		w := make([]float64, dims)
		for _, j := range d.rng.Perm(dims)[:nonZero] {
			w[j] = d.rng.NormFloat64()
		}
		d.projections[i] = w
		d.counts[i] = make(map[int]float64)

		// nBins bins cover [p-span, p+span] around the first projected
		// value; the histogram extends with the same width beyond it.
		p := dot(w, first)
		span := math.Max(math.Abs(p), 1)
		d.origin[i] = p - span
		d.width[i] = 2 * span / float64(d.nBins)
	}
	d.initialized = true
}

func (d *Detector) bin(i int, v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MinInt32
	}
	return int(math.Floor((v - d.origin[i]) / d.width[i]))
}

// dot ignores trailing elements of the longer slice.
func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	return floats.Dot(a[:n], b[:n])
}
