package rcforest

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShingle(t *testing.T) {
	f := New(WithShingleSize(3), WithTrees(1))

	p := f.push([]float64{1, 2})
	assert.Equal(t, []float64{1, 2, 1, 2, 1, 2}, p)

	p = f.push([]float64{3, 4})
	assert.Equal(t, []float64{1, 2, 1, 2, 3, 4}, p)

	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, f.peek([]float64{5, 6}))
	// peek leaves the buffer untouched
	assert.Equal(t, []float64{1, 2, 3, 4, 7, 8}, f.peek([]float64{7, 8}))
}

func TestTreeSizeBound(t *testing.T) {
	f := New(WithTrees(3), WithTreeSize(10), WithSeed(5))
	for i := 0; i < 100; i++ {
		f.FitPartial([]float64{float64(i)})
	}
	for _, tree := range f.trees {
		assert.Len(t, tree, 10)
	}
}

func TestOutlierScoresHigher(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	f := New(WithTrees(8), WithTreeSize(64), WithSeed(2))
	for i := 0; i < 200; i++ {
		f.FitPartial([]float64{rng.NormFloat64(), rng.NormFloat64()})
	}

	normal := f.ScorePartial([]float64{0, 0})
	outlier := f.ScorePartial([]float64{10, 10})
	assert.Greater(t, outlier, normal)
}

func TestEmptyForestScoresZero(t *testing.T) {
	f := New()
	require.Equal(t, 0.0, f.ScorePartial([]float64{1}))
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, distance([]float64{0, 0}, []float64{3, 4}))
	assert.Equal(t, 3.0, distance([]float64{0, 0, 9}, []float64{3}))
	assert.Equal(t, 0.0, distance(nil, []float64{1}))
}
