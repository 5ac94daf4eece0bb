// Package hstree implements Half-Space Trees for streaming anomaly detection.
//
// Each tree recursively halves the feature space along random dimensions.
// Mass profiles are counted over alternating reference and latest windows;
// a sample falling into low-mass regions of the reference window scores high.
package hstree

import (
	"math/rand/v2"

	"github.com/hed1ad/autosad/pkg/detectors"
)

var _ detectors.Detector = (*Trees)(nil)

// Trees is an ensemble of half-space trees.
type Trees struct {
	nTrees     int
	maxDepth   int
	windowSize int
	mins       []float64
	maxs       []float64
	rng        *rand.Rand

	roots       []*node
	firstWindow bool
	step        int
}

type node struct {
	left, right *node
	refMass     int
	latestMass  int
	splitAttr   int
	splitValue  float64
	depth       int
}

// Option configures Trees.
type Option func(*Trees)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(t *Trees) { t.nTrees = n }
}

// WithMaxDepth sets the depth of every tree.
func WithMaxDepth(d int) Option {
	return func(t *Trees) { t.maxDepth = d }
}

// WithWindowSize sets the mass window length.
func WithWindowSize(n int) Option {
	return func(t *Trees) { t.windowSize = n }
}

// WithFeatureRange sets the global feature bounds the trees partition.
// Without it the trees are built over the unit cube on the first sample.
func WithFeatureRange(mins, maxs []float64) Option {
	return func(t *Trees) {
		t.mins = append([]float64(nil), mins...)
		t.maxs = append([]float64(nil), maxs...)
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed uint64) Option {
	return func(t *Trees) {
		t.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates Half-Space Trees with the given options.
func New(opts ...Option) *Trees {
	t := &Trees{
		nTrees:      25,
		maxDepth:    15,
		windowSize:  250,
		rng:         rand.New(rand.NewPCG(42, 42)),
		firstWindow: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.nTrees < 1 {
		t.nTrees = 1
	}
	if t.maxDepth < 1 {
		t.maxDepth = 1
	}
	if t.windowSize < 1 {
		t.windowSize = 1
	}
	if len(t.mins) > 0 && len(t.mins) == len(t.maxs) {
		t.build()
	}
	return t
}

func (t *Trees) build() {
	t.roots = make([]*node, t.nTrees)
	for i := range t.roots {
		t.roots[i] = t.newNode(t.mins, t.maxs, 0)
	}
}

// newNode creates a node covering [mins, maxs]. Internal nodes halve the
// region along a random dimension; their children are created on first
// visit, so untouched regions cost no memory.
func (t *Trees) newNode(mins, maxs []float64, depth int) *node {
	n := &node{depth: depth}
	if depth < t.maxDepth {
		n.splitAttr = t.rng.IntN(len(mins))
		n.splitValue = (mins[n.splitAttr] + maxs[n.splitAttr]) / 2
	}
	return n
}

// FitScorePartial scores the sample before adding it to the mass profile.
func (t *Trees) FitScorePartial(sample []float64) float64 {
	score := t.ScorePartial(sample)
	t.FitPartial(sample)
	return score
}

// FitPartial updates the latest-window mass profile.
func (t *Trees) FitPartial(sample []float64) {
	t.ensureBuilt(len(sample))
	t.step++

	mins := make([]float64, len(t.mins))
	maxs := make([]float64, len(t.maxs))
	for _, root := range t.roots {
		copy(mins, t.mins)
		copy(maxs, t.maxs)
		t.updateMass(sample, root, mins, maxs)
	}

	if t.step%t.windowSize == 0 {
		t.firstWindow = false
		for _, root := range t.roots {
			rotate(root)
		}
	}
}

// ScorePartial returns the negated mass score, so that sparse regions
// produce higher values.
func (t *Trees) ScorePartial(sample []float64) float64 {
	if t.roots == nil {
		return 0
	}
	var s float64
	for _, root := range t.roots {
		s += t.scoreNode(sample, root)
	}
	return -s
}

func (t *Trees) ensureBuilt(dims int) {
	if t.roots != nil {
		return
	}
	t.mins = make([]float64, dims)
	t.maxs = make([]float64, dims)
	for i := range t.maxs {
		t.maxs[i] = 1
	}
	t.build()
}

// updateMass walks x down the tree, narrowing [mins, maxs] to the region
// of the current node and growing missing children.
func (t *Trees) updateMass(x []float64, n *node, mins, maxs []float64) {
	// During the first window the reference profile is filled as well, so
	// the trees can score before one full window has passed.
	if t.firstWindow {
		n.refMass++
	}
	n.latestMass++

	if n.depth == t.maxDepth {
		return
	}
	q := n.splitAttr
	var child **node
	if q < len(x) && x[q] > n.splitValue {
		mins[q] = n.splitValue
		child = &n.right
	} else {
		maxs[q] = n.splitValue
		child = &n.left
	}
	if *child == nil {
		*child = t.newNode(mins, maxs, n.depth+1)
	}
	t.updateMass(x, *child, mins, maxs)
}

func rotate(n *node) {
	n.refMass = n.latestMass
	n.latestMass = 0
	if n.left != nil {
		rotate(n.left)
	}
	if n.right != nil {
		rotate(n.right)
	}
}

func (t *Trees) scoreNode(x []float64, n *node) float64 {
	if n == nil || n.depth == t.maxDepth {
		return 0
	}
	return float64(n.refMass)*float64(uint64(1)<<uint(n.depth)) + t.scoreNode(x, n.child(x))
}

func (n *node) child(x []float64) *node {
	if n.splitAttr < len(x) && x[n.splitAttr] > n.splitValue {
		return n.right
	}
	return n.left
}
