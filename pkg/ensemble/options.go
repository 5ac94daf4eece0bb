package ensemble

import (
	"go.uber.org/zap"

	"github.com/hed1ad/autosad/pkg/detectors"
)

// Defaults for a new Ensemble.
const (
	DefaultPoolSize           = 5
	DefaultEvolutionInterval  = 1000
	DefaultSeed               = 52
	DefaultDiversityThreshold = 0.7
)

// Options holds the settings that shape an ensemble run. They are stored
// in snapshots.
type Options struct {
	PoolSize           int
	EvolutionInterval  int64
	Acquisition        Acquisition
	Reward             RewardStrategy
	RewardWindow       int
	Seed               uint64
	Variants           []detectors.Variant
	DiversityThreshold float64
	BanditDecay        float64
	ExplorationSigma   float64
	Scaling            detectors.Scaling
	Workers            int
}

// DefaultOptions returns the defaults used by New.
func DefaultOptions() Options {
	return Options{
		PoolSize:           DefaultPoolSize,
		EvolutionInterval:  DefaultEvolutionInterval,
		Acquisition:        UCB,
		Reward:             RewardDirect,
		RewardWindow:       DefaultRewardWindow,
		Seed:               DefaultSeed,
		Variants:           append([]detectors.Variant(nil), detectors.Variants...),
		DiversityThreshold: DefaultDiversityThreshold,
		BanditDecay:        DefaultBanditDecay,
		ExplorationSigma:   DefaultExplorationSigma,
		Workers:            1,
	}
}

// Option configures an Ensemble.
type Option func(*Ensemble)

// WithPoolSize sets the number of arms.
func WithPoolSize(n int) Option {
	return func(e *Ensemble) { e.opts.PoolSize = n }
}

// WithEvolutionInterval sets how many instances pass between evolution
// cycles. Zero disables evolution.
func WithEvolutionInterval(n int64) Option {
	return func(e *Ensemble) { e.opts.EvolutionInterval = n }
}

// WithAcquisition sets the acquisition function used for selection and
// ranking.
func WithAcquisition(a Acquisition) Option {
	return func(e *Ensemble) { e.opts.Acquisition = a }
}

// WithReward sets the reward strategy.
func WithReward(r RewardStrategy) Option {
	return func(e *Ensemble) { e.opts.Reward = r }
}

// WithRewardWindow bounds the per-arm history of windowed rewards.
func WithRewardWindow(n int) Option {
	return func(e *Ensemble) { e.opts.RewardWindow = n }
}

// WithSeed sets the seed of the generator behind every random choice.
func WithSeed(seed uint64) Option {
	return func(e *Ensemble) { e.opts.Seed = seed }
}

// WithVariants restricts the variants arms may be drawn from.
func WithVariants(v ...detectors.Variant) Option {
	return func(e *Ensemble) { e.opts.Variants = append([]detectors.Variant(nil), v...) }
}

// WithDiversityThreshold sets the largest share of the pool one variant
// may hold after evolution.
func WithDiversityThreshold(t float64) Option {
	return func(e *Ensemble) { e.opts.DiversityThreshold = t }
}

// WithBanditDecay sets the initial bandit decay.
func WithBanditDecay(d float64) Option {
	return func(e *Ensemble) { e.opts.BanditDecay = d }
}

// WithExplorationSigma sets the initial exploration multiplier.
func WithExplorationSigma(s float64) Option {
	return func(e *Ensemble) { e.opts.ExplorationSigma = s }
}

// WithScaling passes global feature ranges to scale-sensitive variants.
func WithScaling(s detectors.Scaling) Option {
	return func(e *Ensemble) { e.opts.Scaling = s }
}

// WithWorkers sets how many arms are updated concurrently per instance.
// Values below 2 update arms sequentially.
func WithWorkers(n int) Option {
	return func(e *Ensemble) { e.opts.Workers = n }
}

// WithLogger sets the logger for pool events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Ensemble) { e.log = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Ensemble) { e.metrics = m }
}
