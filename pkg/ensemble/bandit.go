package ensemble

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Acquisition names a function that scores arms for selection. Lower
// values are better for every acquisition.
type Acquisition string

const (
	UCB Acquisition = "UCB"
	EI  Acquisition = "EI"
	PI  Acquisition = "PI"
)

// ParseAcquisition resolves an acquisition name, case-insensitively.
func ParseAcquisition(s string) (Acquisition, error) {
	switch a := Acquisition(strings.ToUpper(s)); a {
	case UCB, EI, PI:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// DefaultBanditDecay is the initial weight kept on an arm's past mean.
// Evolution shrinks it down to minBanditDecay.
const (
	DefaultBanditDecay = 0.20
	minBanditDecay     = 0.01
	maxBanditDecay     = 0.99
)

var unitNormal = distuv.UnitNormal

// BanditGate is a multi-armed bandit over the pool. The values fed to it
// are losses, so the best arm has the lowest acquisition value.
type BanditGate struct {
	pulls []int64
	mean  []float64
	t     int64
	decay float64
}

// NewBanditGate returns a gate over nArms arms.
func NewBanditGate(nArms int, decay float64) *BanditGate {
	return &BanditGate{
		pulls: make([]int64, nArms),
		mean:  make([]float64, nArms),
		decay: decay,
	}
}

// Update records one observation for arm and advances the global step.
// New observations get weight 1-decay.
func (b *BanditGate) Update(arm int, value float64) {
	b.t++
	b.observe(arm, value)
}

// Step records one observation for every arm as a single global step.
func (b *BanditGate) Step(values []float64) {
	b.t++
	for arm, v := range values {
		b.observe(arm, v)
	}
}

func (b *BanditGate) observe(arm int, v float64) {
	b.pulls[arm]++
	b.mean[arm] = (1-b.decay)*v + b.decay*b.mean[arm]
}

// Reset forgets everything about arm.
func (b *BanditGate) Reset(arm int) {
	b.pulls[arm] = 0
	b.mean[arm] = 0
}

// T returns the global step counter.
func (b *BanditGate) T() int64 { return b.t }

// Pulls returns the observation count of arm.
func (b *BanditGate) Pulls(arm int) int64 { return b.pulls[arm] }

// Mean returns the EWMA value of arm.
func (b *BanditGate) Mean(arm int) float64 { return b.mean[arm] }

// Decay returns the current decay factor.
func (b *BanditGate) Decay() float64 { return b.decay }

// SetDecay replaces the decay factor.
func (b *BanditGate) SetDecay(d float64) { b.decay = d }

// confidence is sqrt(2 ln(max(1,t)) / max(1,pulls)) per arm.
func (b *BanditGate) confidence() []float64 {
	logT := math.Log(math.Max(1, float64(b.t)))
	out := make([]float64, len(b.pulls))
	for i, n := range b.pulls {
		out[i] = math.Sqrt(2 * logT / math.Max(1, float64(n)))
	}
	return out
}

// UCB returns mean + confidence.
func (b *BanditGate) UCB() []float64 {
	conf := b.confidence()
	out := make([]float64, len(conf))
	for i := range out {
		out[i] = b.mean[i] + conf[i]
	}
	return out
}

// improvement returns best-mean and the standardised improvement z.
func (b *BanditGate) improvement() (imp, z, conf []float64) {
	conf = b.confidence()
	best := math.Inf(1)
	for _, m := range b.mean {
		best = math.Min(best, m)
	}
	imp = make([]float64, len(b.mean))
	z = make([]float64, len(b.mean))
	for i, m := range b.mean {
		imp[i] = best - m
		if conf[i] > 0 {
			z[i] = imp[i] / conf[i]
		}
	}
	return imp, z, conf
}

// EI returns the negated Gaussian expected improvement.
func (b *BanditGate) EI() []float64 {
	imp, z, conf := b.improvement()
	out := make([]float64, len(imp))
	for i := range out {
		out[i] = -(imp[i]*unitNormal.CDF(z[i]) + conf[i]*unitNormal.Prob(z[i]))
	}
	return out
}

// PI returns the negated Gaussian probability of improvement.
func (b *BanditGate) PI() []float64 {
	_, z, _ := b.improvement()
	out := make([]float64, len(z))
	for i := range out {
		out[i] = -unitNormal.CDF(z[i])
	}
	return out
}

// Acquire evaluates the named acquisition function for every arm.
func (b *BanditGate) Acquire(a Acquisition) []float64 {
	switch a {
	case EI:
		return b.EI()
	case PI:
		return b.PI()
	default:
		return b.UCB()
	}
}

// Select returns the arm with the lowest acquisition value. Ties resolve
// to the lowest index.
func (b *BanditGate) Select(a Acquisition) int {
	return argmin(b.Acquire(a))
}

// Rank returns arm indices ordered from best to worst acquisition value.
func (b *BanditGate) Rank(a Acquisition) []int {
	return rank(b.Acquire(a))
}

func argmin(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] < v[best] {
			best = i
		}
	}
	return best
}

func rank(v []float64) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, c int) bool { return v[idx[a]] < v[idx[c]] })
	return idx
}

// banditState is the persisted form of a BanditGate.
type banditState struct {
	Pulls []int64
	Mean  []float64
	T     int64
	Decay float64
}

func (b *BanditGate) state() banditState {
	return banditState{
		Pulls: append([]int64(nil), b.pulls...),
		Mean:  append([]float64(nil), b.mean...),
		T:     b.t,
		Decay: b.decay,
	}
}

func (b *BanditGate) restore(s banditState) {
	b.pulls = append([]int64(nil), s.Pulls...)
	b.mean = append([]float64(nil), s.Mean...)
	b.t = s.T
	b.decay = s.Decay
}
