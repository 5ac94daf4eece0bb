package ensemble

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const medianMinSamples = 100

// MedianReward rewards arms by the absolute Pearson correlation between
// their recent scores and the cross-arm median score.
type MedianReward struct {
	history []*window
	medians *window
}

// NewMedianReward keeps up to windowSize steps of history.
func NewMedianReward(nArms, windowSize int) *MedianReward {
	if windowSize < 1 {
		windowSize = DefaultRewardWindow
	}
	r := &MedianReward{
		history: make([]*window, nArms),
		medians: newWindow(windowSize),
	}
	for i := range r.history {
		r.history[i] = newWindow(windowSize)
	}
	return r
}

func (r *MedianReward) Update(scores []float64) {
	r.medians.push(median(scores))
	for i, s := range scores {
		if i < len(r.history) {
			r.history[i].push(s)
		}
	}
}

// Rewards returns |corr(arm, median)| per arm. Arms with fewer than 100
// scores, constant series and undefined correlations get 0.
func (r *MedianReward) Rewards() []float64 {
	out := make([]float64, len(r.history))
	for i, h := range r.history {
		n := h.len()
		if n < medianMinSamples {
			continue
		}
		x := h.values()
		y := r.medians.last(n)
		if stat.StdDev(x, nil) == 0 || stat.StdDev(y, nil) == 0 {
			continue
		}
		c := stat.Correlation(x, y, nil)
		if math.IsNaN(c) {
			continue
		}
		out[i] = math.Abs(c)
	}
	return out
}

func (r *MedianReward) ResetArm(arm int) {
	r.history[arm].reset()
}

func (r *MedianReward) Strategy() RewardStrategy {
	return RewardMedian
}

// median returns the middle value, averaging the two middle values for
// even lengths.
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := slices.Clone(v)
	slices.Sort(s)
	m := stat.Quantile(0.5, stat.Empirical, s, nil)
	if len(s)%2 == 0 {
		m = (m + s[len(s)/2]) / 2
	}
	return m
}
