package oiforest

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreBeforeFit(t *testing.T) {
	f := New()
	assert.Equal(t, 0.5, f.ScorePartial([]float64{1, 2}))
}

func TestWindowBound(t *testing.T) {
	f := New(WithTrees(4), WithWindowSize(50), WithSeed(1))
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		f.FitPartial([]float64{rng.NormFloat64(), rng.NormFloat64()})
	}
	assert.Equal(t, 50, f.Size())
	assert.Len(t, f.window, 50)
	for _, tr := range f.trees {
		assert.Equal(t, 50, tr.size)
		assert.Equal(t, 50, tr.root.count)
	}
}

func TestTreesGrow(t *testing.T) {
	f := New(WithTrees(2), WithMaxLeafSamples(8), WithGrowthCriterion(GrowthSize), WithWindowSize(0), WithSeed(3))
	rng := rand.New(rand.NewPCG(3, 3))
	for i := 0; i < 500; i++ {
		f.FitPartial([]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()})
	}
	for _, tr := range f.trees {
		require.NotNil(t, tr.root)
		assert.False(t, tr.root.leaf())
		assert.Len(t, tr.root.children, 2)
	}
}

func TestCapacity(t *testing.T) {
	adaptive := New(WithMaxLeafSamples(16), WithGrowthCriterion(GrowthAdaptive))
	assert.Equal(t, 16, adaptive.capacity(0))
	assert.Equal(t, 64, adaptive.capacity(2))

	fixed := New(WithMaxLeafSamples(16), WithGrowthCriterion(GrowthDepth))
	assert.Equal(t, 16, fixed.capacity(5))
}

func TestRandomPathLength(t *testing.T) {
	assert.Equal(t, 0.0, randomPathLength(2, 32, 10))
	assert.InDelta(t, 1.0, randomPathLength(2, 1, 4), 1e-12)
}

func TestOutlierScoresHigher(t *testing.T) {
	for _, split := range []string{SplitAxisParallel, SplitHyperplane} {
		t.Run(split, func(t *testing.T) {
			f := New(
				WithTrees(32),
				WithMaxLeafSamples(8),
				WithBranchingFactor(3),
				WithSplit(split),
				WithWindowSize(1024),
				WithSeed(7),
			)
			rng := rand.New(rand.NewPCG(9, 9))
			for i := 0; i < 1000; i++ {
				f.FitPartial([]float64{rng.NormFloat64(), rng.NormFloat64()})
			}

			normal := f.ScorePartial([]float64{0, 0})
			outlier := f.ScorePartial([]float64{8, -8})
			assert.Greater(t, outlier, normal)
			assert.LessOrEqual(t, outlier, 1.0)
		})
	}
}

func TestUnlearnCollapses(t *testing.T) {
	f := New(WithTrees(1), WithMaxLeafSamples(4), WithGrowthCriterion(GrowthSize), WithWindowSize(8), WithSeed(2))
	for i := 0; i < 8; i++ {
		f.FitPartial([]float64{float64(i)})
	}
	for i := 0; i < 8; i++ {
		f.FitPartial([]float64{100})
	}
	root := f.trees[0].root
	assert.Equal(t, 8, root.count)
	assert.Equal(t, 8, f.trees[0].size)
}

func TestEmptySampleIsIgnored(t *testing.T) {
	f := New(WithTrees(4), WithSeed(3))
	assert.NotPanics(t, func() {
		assert.Equal(t, 0.0, f.FitScorePartial([]float64{}))
	})
	assert.Equal(t, 0, f.Size())
	assert.Empty(t, f.trees[0].projection(0))
}

func TestHyperplaneProjectionIsUnit(t *testing.T) {
	f := New(WithTrees(1), WithSplit(SplitHyperplane), WithSeed(5))
	w := f.trees[0].projection(4)
	var norm float64
	for _, v := range w {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-12)
}
