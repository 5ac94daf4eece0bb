package hstree

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tr := New(WithTrees(4), WithMaxDepth(3), WithFeatureRange([]float64{0, 0}, []float64{1, 1}), WithSeed(1))
	require.Len(t, tr.roots, 4)

	// Children are grown on first visit.
	for _, root := range tr.roots {
		assert.Equal(t, 1, countNodes(root))
	}

	tr.FitPartial([]float64{0.3, 0.7})
	for _, root := range tr.roots {
		assert.Equal(t, 4, countNodes(root))
	}

	tr.FitPartial([]float64{0.3, 0.7})
	for _, root := range tr.roots {
		assert.Equal(t, 4, countNodes(root))
	}
}

func TestChildRegionsHalveParent(t *testing.T) {
	tr := New(WithTrees(1), WithMaxDepth(2), WithFeatureRange([]float64{0}, []float64{8}), WithSeed(5))
	tr.FitPartial([]float64{7})

	root := tr.roots[0]
	assert.Equal(t, 4.0, root.splitValue)
	require.NotNil(t, root.right)
	assert.Nil(t, root.left)
	assert.Equal(t, 6.0, root.right.splitValue)
}

func TestLazyBuildWithoutRange(t *testing.T) {
	tr := New(WithTrees(2), WithMaxDepth(2))
	assert.Nil(t, tr.roots)
	assert.Equal(t, 0.0, tr.ScorePartial([]float64{0.5, 0.5, 0.5}))

	tr.FitPartial([]float64{0.5, 0.5, 0.5})
	require.Len(t, tr.roots, 2)
	assert.Len(t, tr.mins, 3)
}

func TestSparseRegionScoresHigher(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 11))
	tr := New(
		WithTrees(25),
		WithMaxDepth(8),
		WithWindowSize(100),
		WithFeatureRange([]float64{0, 0}, []float64{1, 1}),
		WithSeed(3),
	)

	// Dense cluster near the origin.
	for i := 0; i < 300; i++ {
		tr.FitPartial([]float64{0.1 + 0.05*rng.Float64(), 0.1 + 0.05*rng.Float64()})
	}

	dense := tr.ScorePartial([]float64{0.12, 0.12})
	sparse := tr.ScorePartial([]float64{0.9, 0.9})
	assert.Greater(t, sparse, dense)
}

func TestWindowRotation(t *testing.T) {
	tr := New(WithTrees(1), WithMaxDepth(1), WithWindowSize(2), WithFeatureRange([]float64{0}, []float64{1}))
	root := tr.roots[0]

	tr.FitPartial([]float64{0.2})
	assert.Equal(t, 1, root.refMass)
	assert.Equal(t, 1, root.latestMass)

	tr.FitPartial([]float64{0.2})
	assert.False(t, tr.firstWindow)
	assert.Equal(t, 2, root.refMass)
	assert.Equal(t, 0, root.latestMass)

	tr.FitPartial([]float64{0.2})
	assert.Equal(t, 2, root.refMass)
	assert.Equal(t, 1, root.latestMass)
}

func countNodes(n *node) int {
	if n == nil {
		return 0
	}
	return 1 + countNodes(n.left) + countNodes(n.right)
}
