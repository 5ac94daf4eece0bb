package ensemble

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/autosad/pkg/detectors"
)

func TestSnapshotRestore(t *testing.T) {
	original, err := New(WithPoolSize(4), WithVariants(lightVariants...), WithEvolutionInterval(60), WithSeed(3))
	require.NoError(t, err)
	for _, x := range generateStream(150, 3, 8) {
		original.FitScorePartial(x)
	}

	data, err := original.Snapshot()
	require.NoError(t, err)

	restored, err := New(WithSeed(999), WithWorkers(3))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(data))

	assert.Equal(t, original.Step(), restored.Step())
	assert.Equal(t, original.Sigma(), restored.Sigma())
	assert.Equal(t, original.Decay(), restored.Decay())
	assert.Equal(t, 3, restored.Options().Workers)
	assert.Equal(t, original.Options().Seed, restored.Options().Seed)

	oa, ra := original.Arms(), restored.Arms()
	require.Len(t, ra, len(oa))
	for i := range oa {
		assert.Equal(t, oa[i].Variant, ra[i].Variant)
		assert.True(t, oa[i].Params.Equal(ra[i].Params))
		assert.Equal(t, oa[i].Pulls, ra[i].Pulls)
		assert.Equal(t, oa[i].Loss, ra[i].Loss)
		assert.Equal(t, oa[i].ScoreMean, ra[i].ScoreMean)
		assert.Equal(t, oa[i].Scored, ra[i].Scored)
	}

	// The generator resumes where it stopped.
	assert.Equal(t, original.rng.Uint64(), restored.rng.Uint64())

	// A restored ensemble keeps scoring.
	for _, x := range generateStream(20, 3, 9) {
		s := restored.FitScorePartial(x)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Equal(t, original.Step()+20, restored.Step())
}

func TestRestoreRejectsGarbage(t *testing.T) {
	e, err := New(WithPoolSize(1), WithVariants(detectors.LODA))
	require.NoError(t, err)
	assert.Error(t, e.Restore([]byte("not a snapshot")))
}

func TestRestoreRejectsMismatch(t *testing.T) {
	e, err := New(WithPoolSize(2), WithVariants(detectors.LODA))
	require.NoError(t, err)

	encode := func(s snapshot) []byte {
		var buf bytes.Buffer
		require.NoError(t, gob.NewEncoder(&buf).Encode(s))
		return buf.Bytes()
	}
	rng, err := e.src.MarshalBinary()
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.PoolSize = 2
	params := detectors.Params{"num_bins": detectors.IntValue(50), "num_random_cuts": detectors.IntValue(5)}

	// Fewer arms than the pool size.
	s := snapshot{
		Options: opts,
		RNG:     rng,
		Arms:    []armState{{Variant: detectors.LODA, Params: params}},
		Bandit:  banditState{Pulls: make([]int64, 2), Mean: make([]float64, 2)},
	}
	assert.ErrorIs(t, e.Restore(encode(s)), ErrSnapshotMismatch)

	// Parameters outside the variant's grid schema.
	s.Arms = []armState{
		{Variant: detectors.LODA, Params: params},
		{Variant: detectors.LODA, Params: detectors.Params{"num_bins": detectors.IntValue(50)}},
	}
	assert.ErrorIs(t, e.Restore(encode(s)), ErrSnapshotMismatch)

	// A valid snapshot is accepted.
	s.Arms[1].Params = params
	require.NoError(t, e.Restore(encode(s)))
	assert.Len(t, e.Arms(), 2)
}
