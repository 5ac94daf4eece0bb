package ensemble

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	w := newWindow(3)
	assert.Empty(t, w.values())

	w.push(1)
	w.push(2)
	assert.Equal(t, []float64{1, 2}, w.values())

	w.push(3)
	w.push(4)
	assert.Equal(t, 3, w.len())
	assert.Equal(t, []float64{2, 3, 4}, w.values())
	assert.Equal(t, []float64{3, 4}, w.last(2))
	assert.Equal(t, []float64{2, 3, 4}, w.last(10))

	w.reset()
	assert.Equal(t, 0, w.len())
}

func TestParseRewardStrategy(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want RewardStrategy
	}{
		{"direct", RewardDirect},
		{"Consensus", RewardConsensus},
		{"MEDIAN", RewardMedian},
	} {
		got, err := ParseRewardStrategy(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseRewardStrategy("accuracy")
	assert.ErrorIs(t, err, ErrUnknownReward)
}

func TestNewRewardCalculator(t *testing.T) {
	for _, s := range []RewardStrategy{RewardDirect, RewardConsensus, RewardMedian} {
		r, err := NewRewardCalculator(s, 3, 10)
		require.NoError(t, err)
		assert.Equal(t, s, r.Strategy())
		assert.Len(t, r.Rewards(), 3)
	}

	_, err := NewRewardCalculator("none", 3, 10)
	assert.ErrorIs(t, err, ErrUnknownReward)
}

func TestDirectReward(t *testing.T) {
	r := NewDirectReward(2, 1000)
	for i := 0; i < 9; i++ {
		r.Update([]float64{0.5, 0.2})
	}
	assert.Equal(t, []float64{0, 0}, r.Rewards())

	r.Update([]float64{0.5, 0.2})
	got := r.Rewards()
	assert.InDelta(t, 0.5, got[0], 1e-12)
	assert.InDelta(t, 0.2, got[1], 1e-12)
}

func TestDirectRewardUsesRecentScores(t *testing.T) {
	r := NewDirectReward(1, 1000)
	for i := 0; i < 100; i++ {
		r.Update([]float64{0})
	}
	for i := 0; i < 100; i++ {
		r.Update([]float64{1})
	}
	assert.InDelta(t, 1.0, r.Rewards()[0], 1e-12)
}

func TestDirectRewardWindowBound(t *testing.T) {
	r := NewDirectReward(1, 50)
	for i := 0; i < 500; i++ {
		r.Update([]float64{float64(i)})
	}
	assert.Equal(t, 50, r.history[0].len())
}

func TestDirectRewardResetArm(t *testing.T) {
	r := NewDirectReward(2, 100)
	for i := 0; i < 20; i++ {
		r.Update([]float64{1, 1})
	}
	r.ResetArm(1)

	got := r.Rewards()
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.Equal(t, 0.0, got[1])
}

func TestConsensusRewardFallback(t *testing.T) {
	r := NewConsensusReward(3, DefaultConsensusDecay)

	// Too few updates.
	r.Update([]float64{0.1, 0.2, 0.3})
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, r.Rewards())

	// An arm stuck at zero never builds variance, so raw scores are kept.
	r = NewConsensusReward(3, DefaultConsensusDecay)
	rng := rand.New(rand.NewPCG(3, 3))
	var last []float64
	for i := 0; i < 200; i++ {
		last = []float64{rng.Float64(), rng.Float64(), 0}
		r.Update(last)
	}
	assert.Equal(t, last, r.Rewards())
}

func TestConsensusRewardSingleArm(t *testing.T) {
	r := NewConsensusReward(1, DefaultConsensusDecay)
	rng := rand.New(rand.NewPCG(4, 4))
	for i := 0; i < 200; i++ {
		x := rng.Float64()
		r.Update([]float64{x})
		assert.Equal(t, []float64{x}, r.Rewards())
	}
}

func TestConsensusRewardFavoursAgreement(t *testing.T) {
	r := NewConsensusReward(3, DefaultConsensusDecay)
	rng := rand.New(rand.NewPCG(5, 5))
	for i := 0; i < 2000; i++ {
		x := rng.Float64()
		r.Update([]float64{x, 1 - x, rng.Float64()})
	}

	got := r.Rewards()
	assert.Greater(t, got[0], 0.4)
	assert.Greater(t, got[1], 0.4)
	assert.Less(t, got[2], got[0])
	assert.Less(t, got[2], got[1])

	assert.Greater(t, r.Correlation(0, 1), -1.0-1e-12)
	assert.Less(t, r.Correlation(0, 1), -0.8)
	assert.Equal(t, r.Correlation(0, 1), r.Correlation(1, 0))
}

func TestConsensusRewardResetArm(t *testing.T) {
	r := NewConsensusReward(2, DefaultConsensusDecay)
	rng := rand.New(rand.NewPCG(6, 6))
	for i := 0; i < 50; i++ {
		x := rng.Float64()
		r.Update([]float64{x, x})
	}
	r.ResetArm(1)
	assert.Equal(t, 0.0, r.Correlation(0, 1))
	assert.Equal(t, 0.0, r.Rewards()[1])
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 7.0, median([]float64{7}))

	v := []float64{5, -1, 0.5}
	assert.Equal(t, 0.5, median(v))
	assert.Equal(t, []float64{5, -1, 0.5}, v)
}

func TestMedianReward(t *testing.T) {
	r := NewMedianReward(3, 1000)
	rng := rand.New(rand.NewPCG(7, 7))
	for i := 0; i < 99; i++ {
		x := rng.Float64()
		r.Update([]float64{x, x, rng.Float64()})
	}
	assert.Equal(t, []float64{0, 0, 0}, r.Rewards())

	for i := 0; i < 400; i++ {
		x := rng.Float64()
		r.Update([]float64{x, x, rng.Float64()})
	}

	// Two identical arms always carry the median.
	got := r.Rewards()
	assert.InDelta(t, 1.0, got[0], 1e-9)
	assert.InDelta(t, 1.0, got[1], 1e-9)
	assert.Less(t, got[2], 0.5)
}

func TestMedianRewardConstantArm(t *testing.T) {
	r := NewMedianReward(2, 200)
	rng := rand.New(rand.NewPCG(8, 8))
	for i := 0; i < 300; i++ {
		r.Update([]float64{rng.Float64(), 0.3})
	}
	assert.Equal(t, 0.0, r.Rewards()[1])
	assert.Equal(t, 200, r.history[0].len())
}

func TestMedianRewardResetArm(t *testing.T) {
	r := NewMedianReward(2, 500)
	rng := rand.New(rand.NewPCG(9, 9))
	for i := 0; i < 200; i++ {
		x := rng.Float64()
		r.Update([]float64{x, x})
	}
	r.ResetArm(0)
	assert.Equal(t, 0.0, r.Rewards()[0])
	assert.Greater(t, r.Rewards()[1], 0.9)
}
