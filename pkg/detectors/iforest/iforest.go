// Package iforest implements a windowed streaming Isolation Forest (IForestASD).
//
// Samples are collected into fixed-size windows. The first full window
// trains the forest; every later window is scored against the current
// forest and replaces the reference window only when its anomaly rate
// reaches the drift threshold.
package iforest

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/hed1ad/autosad/pkg/detectors"
)

var _ detectors.Detector = (*Forest)(nil)

// Forest is a streaming isolation forest with drift-triggered retraining.
type Forest struct {
	mu sync.Mutex

	// Configuration
	nTrees        int
	sampleSize    int
	windowSize    int
	contamination float64
	rateThreshold float64
	maxDepth      int
	rng           *rand.Rand

	// Trained model
	trees         []*iTree
	trained       bool
	threshold     float64
	avgPathLength float64

	// Current window
	window       [][]float64
	windowScores []float64
	retrains     int
}

// iTree represents a single isolation tree.
type iTree struct {
	root *node
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *Forest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *Forest) {
		f.sampleSize = n
	}
}

// WithWindowSize sets the number of samples per window.
func WithWindowSize(n int) Option {
	return func(f *Forest) {
		f.windowSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *Forest) {
		f.contamination = c
	}
}

// WithAnomalyRateThreshold sets the window anomaly rate that triggers retraining.
func WithAnomalyRateThreshold(r float64) Option {
	return func(f *Forest) {
		f.rateThreshold = r
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed uint64) Option {
	return func(f *Forest) {
		f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates a new Forest with the given options.
func New(opts ...Option) *Forest {
	f := &Forest{
		nTrees:        100,
		sampleSize:    256,
		windowSize:    2048,
		contamination: 0.1,
		rateThreshold: 0.2,
		rng:           rand.New(rand.NewPCG(42, 42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.nTrees < 1 {
		f.nTrees = 1
	}
	if f.sampleSize < 2 {
		f.sampleSize = 2
	}
	if f.windowSize < 1 {
		f.windowSize = 1
	}

	// Max depth based on sample size
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))
	f.window = make([][]float64, 0, f.windowSize)

	return f
}

// FitScorePartial scores the sample against the current forest, then
// learns from it.
func (f *Forest) FitScorePartial(sample []float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	score := f.scoreOne(sample)
	f.fitOne(sample, score)
	return score
}

// FitPartial learns from one sample.
func (f *Forest) FitPartial(sample []float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fitOne(sample, f.scoreOne(sample))
}

// ScorePartial returns the anomaly score of sample in [0, 1]. It returns 0
// until the first window has been collected.
func (f *Forest) ScorePartial(sample []float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.scoreOne(sample)
}

// Trained reports whether the first window has been fitted.
func (f *Forest) Trained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trained
}

// Retrains returns how many times drift replaced the reference window.
func (f *Forest) Retrains() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrains
}

// Threshold returns the score cutoff learned from the reference window.
func (f *Forest) Threshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

func (f *Forest) fitOne(sample []float64, score float64) {
	f.window = append(f.window, append([]float64(nil), sample...))
	if f.trained {
		f.windowScores = append(f.windowScores, score)
	}

	if len(f.window) < f.windowSize {
		return
	}

	switch {
	case !f.trained:
		f.fit(f.window)
	case f.anomalyRate() >= f.rateThreshold:
		f.fit(f.window)
		f.retrains++
	}

	f.window = make([][]float64, 0, f.windowSize)
	f.windowScores = f.windowScores[:0]
}

// anomalyRate is the fraction of the current window scoring at or above
// the reference threshold.
func (f *Forest) anomalyRate() float64 {
	if len(f.windowScores) == 0 {
		return 0
	}
	var n int
	for _, s := range f.windowScores {
		if s >= f.threshold {
			n++
		}
	}
	return float64(n) / float64(len(f.windowScores))
}

// fit rebuilds the forest from the reference window.
func (f *Forest) fit(data [][]float64) {
	nSamples := len(data)
	nFeatures := len(data[0])

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}

	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &iTree{root: f.buildNode(sample, nFeatures, 0)}
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.trained = true

	scores := make([]float64, nSamples)
	for i, row := range data {
		scores[i] = f.scoreOne(row)
	}
	f.threshold = percentile(scores, 100*(1-f.contamination))
}

func (f *Forest) buildNode(data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := f.rng.IntN(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)

	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(leftData, nFeatures, depth+1),
		right:        f.buildNode(rightData, nFeatures, depth+1),
	}
}

func (f *Forest) scoreOne(sample []float64) float64 {
	if !f.trained || f.avgPathLength == 0 {
		return 0
	}

	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if n.splitFeature < len(sample) && sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, H(n) ~ ln(n) + Euler-Mascheroni constant
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// percentile calculates the p-th percentile of the data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
