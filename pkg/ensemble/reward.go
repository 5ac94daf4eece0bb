package ensemble

import (
	"fmt"
	"strings"
)

// RewardCalculator turns the per-step vector of normalized arm scores
// into a per-arm reward. Higher rewards are better.
type RewardCalculator interface {
	// Update records the normalized scores of every arm for one step.
	Update(scores []float64)
	// Rewards returns one reward per arm.
	Rewards() []float64
	// ResetArm forgets the history of one arm after it is replaced.
	ResetArm(arm int)
	// Strategy identifies the reward definition.
	Strategy() RewardStrategy
}

// RewardStrategy selects how rewards are derived from scores. Which one
// reflects detection quality depends on the data; the choice is left to
// the caller.
type RewardStrategy string

const (
	// RewardDirect rewards arms that emit high normalized scores.
	RewardDirect RewardStrategy = "direct"
	// RewardConsensus rewards arms correlated with the rest of the pool.
	RewardConsensus RewardStrategy = "consensus"
	// RewardMedian rewards arms correlated with the cross-arm median.
	RewardMedian RewardStrategy = "median"
)

// ParseRewardStrategy resolves a strategy name, case-insensitively.
func ParseRewardStrategy(s string) (RewardStrategy, error) {
	switch r := RewardStrategy(strings.ToLower(s)); r {
	case RewardDirect, RewardConsensus, RewardMedian:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReward, s)
}

// Default reward parameters.
const (
	DefaultRewardWindow   = 1000
	DefaultConsensusDecay = 0.005
)

// NewRewardCalculator builds the calculator for strategy over nArms arms.
func NewRewardCalculator(strategy RewardStrategy, nArms, window int) (RewardCalculator, error) {
	switch strategy {
	case RewardDirect:
		return NewDirectReward(nArms, window), nil
	case RewardConsensus:
		return NewConsensusReward(nArms, DefaultConsensusDecay), nil
	case RewardMedian:
		return NewMedianReward(nArms, window), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownReward, strategy)
}
