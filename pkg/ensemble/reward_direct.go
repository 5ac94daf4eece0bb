package ensemble

import "gonum.org/v1/gonum/stat"

const (
	directMinSamples = 10
	directRecent     = 100
)

// DirectReward rewards each arm with the mean of its most recent
// normalized scores.
type DirectReward struct {
	history []*window
}

// NewDirectReward keeps up to windowSize scores per arm.
func NewDirectReward(nArms, windowSize int) *DirectReward {
	if windowSize < 1 {
		windowSize = DefaultRewardWindow
	}
	r := &DirectReward{history: make([]*window, nArms)}
	for i := range r.history {
		r.history[i] = newWindow(windowSize)
	}
	return r
}

func (r *DirectReward) Update(scores []float64) {
	for i, s := range scores {
		if i < len(r.history) {
			r.history[i].push(s)
		}
	}
}

// Rewards returns the mean of the last 100 scores per arm, or 0 for arms
// with fewer than 10 scores.
func (r *DirectReward) Rewards() []float64 {
	out := make([]float64, len(r.history))
	for i, h := range r.history {
		if h.len() < directMinSamples {
			continue
		}
		out[i] = stat.Mean(h.last(directRecent), nil)
	}
	return out
}

func (r *DirectReward) ResetArm(arm int) {
	r.history[arm].reset()
}

func (r *DirectReward) Strategy() RewardStrategy {
	return RewardDirect
}
