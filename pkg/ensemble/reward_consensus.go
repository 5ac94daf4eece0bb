package ensemble

import "math"

const (
	consensusWarmup      = 100
	consensusMinUpdates  = 10
	consensusMinVariance = 1e-10
)

// ConsensusReward rewards arms whose scores move together with the rest
// of the pool. Means, variances and pairwise covariances are tracked as
// exponentially weighted statistics, so memory is constant in stream length.
type ConsensusReward struct {
	decay   float64
	updates int

	means []float64
	vars  []float64
	cov   [][]float64
	corr  [][]float64

	rewards []float64
}

// NewConsensusReward tracks nArms arms with EWMA decay factor decay.
func NewConsensusReward(nArms int, decay float64) *ConsensusReward {
	if decay <= 0 || decay > 1 {
		decay = DefaultConsensusDecay
	}
	r := &ConsensusReward{
		decay:   decay,
		means:   make([]float64, nArms),
		vars:    make([]float64, nArms),
		cov:     make([][]float64, nArms),
		corr:    make([][]float64, nArms),
		rewards: make([]float64, nArms),
	}
	for i := 0; i < nArms; i++ {
		r.cov[i] = make([]float64, nArms)
		r.corr[i] = make([]float64, nArms)
	}
	return r
}

func (r *ConsensusReward) Update(scores []float64) {
	n := len(r.means)
	r.updates++

	// Adapt faster while the statistics are still cold.
	alpha := r.decay
	if r.updates < consensusWarmup {
		alpha = math.Min(1, r.decay*10)
	}

	delta := make([]float64, n)
	for i := 0; i < n; i++ {
		delta[i] = scores[i] - r.means[i]
		r.means[i] += alpha * delta[i]
		r.vars[i] = (1 - alpha) * (r.vars[i] + alpha*delta[i]*delta[i])
	}

	if n < 2 || r.updates < consensusMinUpdates || r.lowVariance() {
		copy(r.rewards, scores)
		return
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dj := scores[j] - r.means[j]
			c := (1-alpha)*r.cov[i][j] + alpha*delta[i]*dj
			r.cov[i][j], r.cov[j][i] = c, c
		}
	}

	for i := 0; i < n; i++ {
		r.corr[i][i] = 1
		si := math.Sqrt(r.vars[i])
		for j := i + 1; j < n; j++ {
			sj := math.Sqrt(r.vars[j])
			c := r.cov[i][j] / (si * sj)
			c = math.Max(-1, math.Min(1, c))
			r.corr[i][j], r.corr[j][i] = c, c
		}
	}

	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if j != i {
				sum += math.Abs(r.corr[i][j])
			}
		}
		r.rewards[i] = sum / float64(n-1)
	}
}

func (r *ConsensusReward) lowVariance() bool {
	for _, v := range r.vars {
		if v < consensusMinVariance {
			return true
		}
	}
	return false
}

// Rewards returns the rewards computed by the last Update.
func (r *ConsensusReward) Rewards() []float64 {
	return append([]float64(nil), r.rewards...)
}

func (r *ConsensusReward) ResetArm(arm int) {
	r.means[arm] = 0
	r.vars[arm] = 0
	for j := range r.cov {
		r.cov[arm][j], r.cov[j][arm] = 0, 0
		r.corr[arm][j], r.corr[j][arm] = 0, 0
	}
	r.rewards[arm] = 0
}

func (r *ConsensusReward) Strategy() RewardStrategy {
	return RewardConsensus
}

// Correlation returns the current correlation estimate between two arms.
func (r *ConsensusReward) Correlation(i, j int) float64 {
	return r.corr[i][j]
}
