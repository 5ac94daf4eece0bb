package checkpoint

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/autosad/pkg/detectors"
	"github.com/hed1ad/autosad/pkg/ensemble"
)

func openTestStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true, Keep: keep}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, nil)
	assert.Error(t, err)

	_, err = Open(Config{InMemory: true, Keep: -1}, nil)
	assert.Error(t, err)
}

func TestOpenPersistent(t *testing.T) {
	dir := t.TempDir()
	run := uuid.New()

	s, err := Open(Config{Path: dir, SyncWrites: true}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(run, 7, []byte("state")))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	defer s.Close()

	data, err := s.Load(run, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), data)
}

func TestSaveLoad(t *testing.T) {
	s := openTestStore(t, 0)
	run := uuid.New()

	require.NoError(t, s.Save(run, 100, []byte("a")))
	require.NoError(t, s.Save(run, 100, []byte("b")))

	data, err := s.Load(run, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	_, err = s.Load(run, 200)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.Save(run, -1, nil))
}

func TestLatestAndList(t *testing.T) {
	s := openTestStore(t, 0)
	run, other := uuid.New(), uuid.New()

	_, _, err := s.Latest(run)
	assert.ErrorIs(t, err, ErrNotFound)

	// Out of order and spanning a byte boundary.
	for _, step := range []int64{1000, 5, 256, 255, 70000} {
		require.NoError(t, s.Save(run, step, []byte{byte(step)}))
	}
	require.NoError(t, s.Save(other, 999999, []byte("x")))

	steps, err := s.List(run)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 255, 256, 1000, 70000}, steps)

	step, data, err := s.Latest(run)
	require.NoError(t, err)
	assert.Equal(t, int64(70000), step)
	assert.Equal(t, []byte{70000 % 256}, data)

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{run, other}, runs)
}

func TestDeleteAndPrune(t *testing.T) {
	s := openTestStore(t, 0)
	run := uuid.New()
	for step := int64(1); step <= 5; step++ {
		require.NoError(t, s.Save(run, step, nil))
	}

	require.NoError(t, s.Delete(run, 3))
	require.NoError(t, s.Prune(run, 2))

	steps, err := s.List(run)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, steps)

	require.NoError(t, s.Prune(run, 10))
	steps, err = s.List(run)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestSaveRetention(t *testing.T) {
	s := openTestStore(t, 3)
	run := uuid.New()
	for step := int64(10); step <= 60; step += 10 {
		require.NoError(t, s.Save(run, step, nil))
	}

	steps, err := s.List(run)
	require.NoError(t, err)
	assert.Equal(t, []int64{40, 50, 60}, steps)
}

func TestCheckpointResume(t *testing.T) {
	s := openTestStore(t, 0)
	run := uuid.New()

	opts := []ensemble.Option{
		ensemble.WithPoolSize(3),
		ensemble.WithEvolutionInterval(20),
		ensemble.WithVariants(detectors.LODA, detectors.HalfSpaceTrees),
		ensemble.WithSeed(9),
	}
	e, err := ensemble.New(opts...)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		e.Score([]float64{float64(i % 7), float64(i % 3)})
	}
	require.NoError(t, s.Checkpoint(run, e))

	fresh, err := ensemble.New(opts...)
	require.NoError(t, err)
	step, err := s.Resume(run, fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(50), step)
	assert.Equal(t, e.Step(), fresh.Step())
	assert.Equal(t, e.Sigma(), fresh.Sigma())

	_, err = s.Resume(uuid.New(), fresh)
	assert.ErrorIs(t, err, ErrNotFound)
}
