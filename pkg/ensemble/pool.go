package ensemble

import (
	"math"

	"go.uber.org/zap"

	"github.com/hed1ad/autosad/pkg/detectors"
)

// Arm is one member of the pool: a scorer with its configuration and the
// normalizer for its raw scores. Its bandit statistics live in the gate at
// the same index.
type Arm struct {
	Variant    detectors.Variant
	Params     detectors.Params
	Scaling    detectors.Scaling
	Detector   detectors.Detector
	Normalizer *Normalizer
}

func newArm(v detectors.Variant, params detectors.Params, scaling detectors.Scaling, seed uint64) *Arm {
	return &Arm{
		Variant:    v,
		Params:     params,
		Scaling:    scaling,
		Detector:   NewDetector(v, params, scaling, seed),
		Normalizer: NewNormalizer(),
	}
}

// Replacement describes one arm swapped out during evolution.
type Replacement struct {
	Slot   int
	Source int // -1 for a random arm
	From   detectors.Variant
	To     detectors.Variant
	Params detectors.Params
}

// Evolution summarises one evolution cycle.
type Evolution struct {
	Sigma    float64
	Decay    float64
	Ranking  []int
	Mutated  []Replacement
	Guarded  []Replacement
	Variants map[detectors.Variant]int
}

// Pool owns the fixed-size set of arms and reshapes it on evolution.
type Pool struct {
	arms      []*Arm
	sampler   *Sampler
	bandit    *BanditGate
	reward    RewardCalculator
	acq       Acquisition
	variants  []detectors.Variant
	threshold float64
	scaling   detectors.Scaling
	sigma     float64
	log       *zap.Logger
}

// fill populates every slot with a random arm and applies the diversity
// guard so the starting pool already satisfies it.
func (p *Pool) fill(n int) {
	p.arms = make([]*Arm, n)
	for i := range p.arms {
		p.arms[i] = p.sampler.Random(p.variants, p.scaling)
	}
	p.guard()
}

// Len returns the pool size.
func (p *Pool) Len() int { return len(p.arms) }

// Arm returns the arm in slot i.
func (p *Pool) Arm(i int) *Arm { return p.arms[i] }

// Sigma returns the current exploration multiplier.
func (p *Pool) Sigma() float64 { return p.sigma }

// Counts returns the number of arms per variant.
func (p *Pool) Counts() map[detectors.Variant]int {
	counts := make(map[detectors.Variant]int)
	for _, a := range p.arms {
		counts[a.Variant]++
	}
	return counts
}

// Evolve runs one evolution cycle: the exploration multiplier and bandit
// decay shrink as the pool's mean reward grows, the best half of the arms
// is mutated into the worst half, and the diversity guard runs last.
func (p *Pool) Evolve() Evolution {
	n := len(p.arms)

	shrink := math.Pow(2, -p.avgReward())
	p.sigma = clampSigma(p.sigma * shrink)
	p.bandit.SetDecay(clampDecay(p.bandit.Decay() * shrink))

	ranking := p.bandit.Rank(p.acq)
	half := n / 2
	ev := Evolution{Ranking: ranking}
	for i := 0; i < half; i++ {
		src, tgt := ranking[i], ranking[n-half+i]
		from := p.arms[tgt].Variant
		p.replace(tgt, p.sampler.Mutate(p.arms[src], p.sigma))
		ev.Mutated = append(ev.Mutated, Replacement{
			Slot: tgt, Source: src, From: from,
			To: p.arms[tgt].Variant, Params: p.arms[tgt].Params,
		})
		p.log.Debug("arm mutated",
			zap.Int("slot", tgt),
			zap.Int("source", src),
			zap.Stringer("variant", p.arms[tgt].Variant),
			zap.Stringer("params", p.arms[tgt].Params),
		)
	}

	ev.Guarded = p.guard()
	ev.Sigma = p.sigma
	ev.Decay = p.bandit.Decay()
	ev.Variants = p.Counts()
	return ev
}

// avgReward is the mean of the current reward vector, clipped to [0, 1].
func (p *Pool) avgReward() float64 {
	var sum float64
	var n int
	for _, r := range p.reward.Rewards() {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		sum += math.Max(0, math.Min(1, r))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clampSigma(s float64) float64 {
	if math.IsNaN(s) {
		return DefaultExplorationSigma
	}
	return math.Max(minExplorationSigma, math.Min(maxExplorationSigma, s))
}

// clampDecay keeps the bandit decay in [minBanditDecay, maxBanditDecay].
func clampDecay(d float64) float64 {
	if math.IsNaN(d) {
		return DefaultBanditDecay
	}
	return math.Max(minBanditDecay, math.Min(maxBanditDecay, d))
}

// guard replaces arms of any variant holding more than the threshold
// share of the pool. The arm of that variant with the best acquisition
// value stays. Replacements are drawn from variants that stay within the
// threshold, or the least populated variant when none does. A single-arm
// pool, or a pool restricted to one variant, is left as is.
func (p *Pool) guard() []Replacement {
	n := len(p.arms)
	if n < 2 || len(p.variants) < 2 {
		return nil
	}

	var out []Replacement
	counts := p.Counts()
	for _, v := range p.variants {
		if float64(counts[v])/float64(n) <= p.threshold {
			continue
		}

		acq := p.bandit.Acquire(p.acq)
		keep := -1
		for i, a := range p.arms {
			if a.Variant == v && (keep < 0 || acq[i] < acq[keep]) {
				keep = i
			}
		}

		for i, a := range p.arms {
			if a.Variant != v || i == keep {
				continue
			}
			counts[v]--
			arm := p.sampler.Random(p.allowed(counts, n), p.scaling)
			counts[arm.Variant]++
			p.replace(i, arm)
			out = append(out, Replacement{Slot: i, Source: -1, From: v, To: arm.Variant, Params: arm.Params})
			p.log.Debug("arm replaced by diversity guard",
				zap.Int("slot", i),
				zap.Stringer("from", v),
				zap.Stringer("to", arm.Variant),
				zap.Stringer("params", arm.Params),
			)
		}
	}
	return out
}

// allowed lists the variants that can take one more arm without crossing
// the threshold.
func (p *Pool) allowed(counts map[detectors.Variant]int, n int) []detectors.Variant {
	var out []detectors.Variant
	for _, v := range p.variants {
		if float64(counts[v]+1)/float64(n) <= p.threshold {
			out = append(out, v)
		}
	}
	if len(out) > 0 {
		return out
	}

	least := p.variants[0]
	for _, v := range p.variants[1:] {
		if counts[v] < counts[least] {
			least = v
		}
	}
	return []detectors.Variant{least}
}

// replace installs arm in slot i and forgets the slot's history.
func (p *Pool) replace(i int, arm *Arm) {
	p.arms[i] = arm
	p.bandit.Reset(i)
	p.reward.ResetArm(i)
}
