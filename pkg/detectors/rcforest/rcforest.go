// Package rcforest implements a simplified Robust Random Cut Forest.
//
// Every tree keeps a bounded random sample of recent shingled points. When
// a tree is full, a uniformly chosen member is evicted, so trees hold
// different, overlapping views of the stream. A point scores by its mean
// distance to the members of each tree, averaged over the forest.
package rcforest

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/hed1ad/autosad/pkg/detectors"
)

var _ detectors.Detector = (*Forest)(nil)

// Forest is a simplified robust random cut forest.
type Forest struct {
	nTrees      int
	treeSize    int
	shingleSize int
	rng         *rand.Rand

	trees   [][][]float64
	shingle [][]float64
	seen    int
}

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(f *Forest) { f.nTrees = n }
}

// WithTreeSize sets the number of points kept per tree.
func WithTreeSize(n int) Option {
	return func(f *Forest) { f.treeSize = n }
}

// WithShingleSize sets how many consecutive samples form one point.
func WithShingleSize(n int) Option {
	return func(f *Forest) { f.shingleSize = n }
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed uint64) Option {
	return func(f *Forest) {
		f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New creates a Forest with the given options.
func New(opts ...Option) *Forest {
	f := &Forest{
		nTrees:      4,
		treeSize:    256,
		shingleSize: 1,
		rng:         rand.New(rand.NewPCG(42, 42)),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.nTrees < 1 {
		f.nTrees = 1
	}
	if f.treeSize < 1 {
		f.treeSize = 1
	}
	if f.shingleSize < 1 {
		f.shingleSize = 1
	}
	f.trees = make([][][]float64, f.nTrees)
	return f
}

// FitScorePartial inserts the sample and returns its score.
func (f *Forest) FitScorePartial(sample []float64) float64 {
	point := f.push(sample)
	f.insert(point)
	return f.score(point)
}

// FitPartial inserts one sample.
func (f *Forest) FitPartial(sample []float64) {
	f.insert(f.push(sample))
}

// ScorePartial scores the sample as the next shingle without inserting it.
func (f *Forest) ScorePartial(sample []float64) float64 {
	return f.score(f.peek(sample))
}

// push appends sample to the shingle buffer and returns the shingled point.
func (f *Forest) push(sample []float64) []float64 {
	s := append([]float64(nil), sample...)
	if len(f.shingle) == 0 {
		for i := 0; i < f.shingleSize; i++ {
			f.shingle = append(f.shingle, s)
		}
	} else {
		f.shingle = append(f.shingle[1:], s)
	}
	f.seen++
	return flatten(f.shingle)
}

func (f *Forest) peek(sample []float64) []float64 {
	if len(f.shingle) == 0 {
		buf := make([][]float64, f.shingleSize)
		for i := range buf {
			buf[i] = sample
		}
		return flatten(buf)
	}
	buf := append(append([][]float64(nil), f.shingle[1:]...), sample)
	return flatten(buf)
}

func (f *Forest) insert(point []float64) {
	for i, tree := range f.trees {
		if len(tree) < f.treeSize {
			f.trees[i] = append(tree, point)
			continue
		}
		tree[f.rng.IntN(len(tree))] = point
	}
}

func (f *Forest) score(point []float64) float64 {
	var total float64
	var n int
	for _, tree := range f.trees {
		if len(tree) == 0 {
			continue
		}
		var sum float64
		for _, p := range tree {
			sum += distance(p, point)
		}
		total += sum / float64(len(tree))
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func distance(a, b []float64) float64 {
	n := min(len(a), len(b))
	return floats.Distance(a[:n], b[:n], 2)
}
