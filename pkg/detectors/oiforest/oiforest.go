// Package oiforest implements an Online Isolation Forest.
//
// Trees grow leaves into multi-way splits once enough samples have been
// observed in them, and collapse them again as samples leave the sliding
// window. Splits are either axis-parallel or random hyperplanes.
package oiforest

import (
	"math"
	"math/rand/v2"

	"github.com/hed1ad/autosad/pkg/detectors"
)

var _ detectors.Detector = (*Forest)(nil)

// Split strategies.
const (
	SplitAxisParallel = "axisparallel"
	SplitHyperplane   = "hyperplane"
)

// Growth criteria. Adaptive doubles the leaf capacity at every level.
const (
	GrowthAdaptive = "adaptive"
	GrowthDepth    = "depth"
	GrowthSize     = "size"
)

// Forest is an online isolation forest over a sliding window.
type Forest struct {
	nTrees     int
	maxLeaf    int
	growth     string
	subsample  float64
	windowSize int
	branching  int
	split      string
	rng        *rand.Rand

	trees  []*tree
	window []entry
	size   int
}

// entry remembers which trees learned a windowed sample.
type entry struct {
	x       []float64
	learned []bool
}

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(f *Forest) { f.nTrees = n }
}

// WithMaxLeafSamples sets the base leaf capacity before a split.
func WithMaxLeafSamples(n int) Option {
	return func(f *Forest) { f.maxLeaf = n }
}

// WithGrowthCriterion sets how leaf capacity scales with depth.
func WithGrowthCriterion(g string) Option {
	return func(f *Forest) { f.growth = g }
}

// WithSubsample sets the probability that a tree learns a given sample.
func WithSubsample(p float64) Option {
	return func(f *Forest) { f.subsample = p }
}

// WithWindowSize sets the sliding window length. Zero keeps every sample.
func WithWindowSize(n int) Option {
	return func(f *Forest) { f.windowSize = n }
}

// WithBranchingFactor sets the number of children per split.
func WithBranchingFactor(b int) Option {
	return func(f *Forest) { f.branching = b }
}

// WithSplit selects axis-parallel or hyperplane splits.
func WithSplit(s string) Option {
	return func(f *Forest) { f.split = s }
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed uint64) Option {
	return func(f *Forest) {
		f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates an online isolation forest with the given options.
func New(opts ...Option) *Forest {
	f := &Forest{
		nTrees:     32,
		maxLeaf:    32,
		growth:     GrowthAdaptive,
		subsample:  1,
		windowSize: 2048,
		branching:  2,
		split:      SplitAxisParallel,
		rng:        rand.New(rand.NewPCG(42, 42)),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.nTrees < 1 {
		f.nTrees = 1
	}
	if f.maxLeaf < 1 {
		f.maxLeaf = 1
	}
	if f.branching < 2 {
		f.branching = 2
	}
	if f.subsample <= 0 || f.subsample > 1 {
		f.subsample = 1
	}

	f.trees = make([]*tree, f.nTrees)
	for i := range f.trees {
		seed := f.rng.Uint64()
		f.trees[i] = &tree{
			forest: f,
			rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		}
	}
	return f
}

// FitScorePartial learns the sample, then scores it.
func (f *Forest) FitScorePartial(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	f.FitPartial(sample)
	return f.ScorePartial(sample)
}

// FitPartial learns one sample and forgets the sample leaving the window.
func (f *Forest) FitPartial(sample []float64) {
	if len(sample) == 0 {
		return
	}
	x := append([]float64(nil), sample...)
	learned := make([]bool, len(f.trees))
	for i, t := range f.trees {
		if f.rng.Float64() < f.subsample {
			t.learn(x)
			learned[i] = true
		}
	}
	f.size++

	if f.windowSize <= 0 {
		return
	}
	f.window = append(f.window, entry{x: x, learned: learned})
	for len(f.window) > f.windowSize {
		old := f.window[0]
		f.window = f.window[1:]
		for i, t := range f.trees {
			if old.learned[i] {
				t.unlearn(old.x)
			}
		}
		f.size--
	}
}

// ScorePartial returns 2^(-meanDepth/c) in (0, 1]. It returns 0.5 before
// any sample has been learned.
func (f *Forest) ScorePartial(sample []float64) float64 {
	if f.size == 0 {
		return 0.5
	}
	var total float64
	for _, t := range f.trees {
		total += t.depthOf(sample)
	}
	mean := total / float64(len(f.trees))
	norm := randomPathLength(f.branching, f.maxLeaf, float64(f.size)*f.subsample)
	return math.Pow(2, -mean/(norm+math.SmallestNonzeroFloat64))
}

// Size returns the number of samples currently in the window.
func (f *Forest) Size() int {
	return f.size
}

// capacity is the sample count at which a leaf at depth splits.
func (f *Forest) capacity(depth int) int {
	if f.growth == GrowthAdaptive {
		if depth > 20 {
			depth = 20
		}
		return f.maxLeaf << uint(depth)
	}
	return f.maxLeaf
}

// randomPathLength is the expected depth of a tree holding n samples in
// leaves of size maxLeaf with the given branching factor.
func randomPathLength(branching, maxLeaf int, n float64) float64 {
	if n < float64(maxLeaf) {
		return 0
	}
	return math.Log(n/float64(maxLeaf)) / math.Log(2*float64(branching))
}
