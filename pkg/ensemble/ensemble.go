// Package ensemble selects, online, which of a pool of streaming anomaly
// scorers to trust.
//
// Every instance is scored by every arm. Raw scores are normalized per arm,
// turned into rewards, and fed to a bandit whose acquisition function picks
// the arm whose score is reported. Every EvolutionInterval instances the
// pool is reshaped: the best arms are mutated into the slots of the worst,
// and no variant may dominate the pool.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/autosad/pkg/detectors"
)

var _ detectors.Detector = (*Ensemble)(nil)

// Ensemble is the online selection loop. It is safe for concurrent use;
// instances are processed strictly one at a time.
type Ensemble struct {
	mu sync.Mutex

	opts    Options
	log     *zap.Logger
	metrics *Metrics

	src    *rand.PCG
	rng    *rand.Rand
	pool   *Pool
	bandit *BanditGate
	reward RewardCalculator
	step   int64
}

// ArmInfo is a read-only view of one arm.
type ArmInfo struct {
	Slot        int
	Variant     detectors.Variant
	Params      detectors.Params
	Pulls       int64
	Loss        float64
	Acquisition float64
	ScoreMean   float64
	Scored      int64
}

// New creates an ensemble and draws its initial pool.
func New(opts ...Option) (*Ensemble, error) {
	e := &Ensemble{opts: DefaultOptions(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.opts.validate(); err != nil {
		return nil, err
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if err := e.init(); err != nil {
		return nil, err
	}

	e.log.Info("pool initialised",
		zap.Int("pool_size", e.opts.PoolSize),
		zap.String("acquisition", string(e.opts.Acquisition)),
		zap.String("reward", string(e.opts.Reward)),
		zap.Uint64("seed", e.opts.Seed),
		zap.String("variants", formatMix(e.pool.Counts())),
	)
	e.metrics.observePool(e.pool)
	return e, nil
}

// init builds the generator, bandit, reward calculator and pool from
// e.opts.
func (e *Ensemble) init() error {
	e.src = rand.NewPCG(e.opts.Seed, e.opts.Seed^0x9e3779b97f4a7c15)
	e.rng = rand.New(e.src)
	e.bandit = NewBanditGate(e.opts.PoolSize, e.opts.BanditDecay)

	reward, err := NewRewardCalculator(e.opts.Reward, e.opts.PoolSize, e.opts.RewardWindow)
	if err != nil {
		return err
	}
	e.reward = reward

	e.pool = &Pool{
		sampler:   NewSampler(e.rng),
		bandit:    e.bandit,
		reward:    e.reward,
		acq:       e.opts.Acquisition,
		variants:  e.opts.Variants,
		threshold: e.opts.DiversityThreshold,
		scaling:   e.opts.Scaling,
		sigma:     e.opts.ExplorationSigma,
		log:       e.log,
	}
	e.pool.fill(e.opts.PoolSize)
	e.step = 0
	return nil
}

func (o Options) validate() error {
	if o.PoolSize < 1 {
		return fmt.Errorf("ensemble: %w: got %d", ErrInvalidPoolSize, o.PoolSize)
	}
	if _, err := ParseAcquisition(string(o.Acquisition)); err != nil {
		return fmt.Errorf("ensemble: %w", err)
	}
	if _, err := ParseRewardStrategy(string(o.Reward)); err != nil {
		return fmt.Errorf("ensemble: %w", err)
	}
	if len(o.Variants) == 0 {
		return fmt.Errorf("ensemble: %w", ErrNoVariants)
	}
	for _, v := range o.Variants {
		if !knownVariant(v) {
			return fmt.Errorf("ensemble: unknown variant %d", int(v))
		}
	}
	if o.EvolutionInterval < 0 {
		return errors.New("ensemble: evolution interval must not be negative")
	}
	if o.DiversityThreshold <= 0 || o.DiversityThreshold > 1 {
		return errors.New("ensemble: diversity threshold must be in (0, 1]")
	}
	if o.BanditDecay < 0 || o.BanditDecay >= 1 {
		return errors.New("ensemble: bandit decay must be in [0, 1)")
	}
	if o.ExplorationSigma <= 0 {
		return errors.New("ensemble: exploration sigma must be positive")
	}
	return nil
}

func knownVariant(v detectors.Variant) bool {
	for _, known := range detectors.Variants {
		if known == v {
			return true
		}
	}
	return false
}

// FitScorePartial feeds x to every arm and returns the normalized score of
// the selected arm.
func (e *Ensemble) FitScorePartial(x []float64) float64 {
	return e.Score(x).Value
}

// Score feeds x to every arm and reports the selected arm's normalized
// score together with which arm produced it. An empty sample scores 0 and
// leaves the ensemble untouched.
func (e *Ensemble) Score(x []float64) detectors.Score {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(x) == 0 {
		return detectors.Score{}
	}
	x = append([]float64(nil), x...)
	n := e.pool.Len()
	raw := e.fanOut(x)

	normalized := make([]float64, n)
	for i, r := range raw {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
		}
		normalized[i] = e.pool.Arm(i).Normalizer.Process(r)
	}

	e.reward.Update(normalized)
	rewards := e.reward.Rewards()
	losses := make([]float64, n)
	for i, r := range rewards {
		losses[i] = 1 - r
	}
	e.bandit.Step(losses)

	arm := e.bandit.Select(e.opts.Acquisition)
	e.step++
	score := detectors.Score{
		Value:    normalized[arm],
		Arm:      arm,
		Variant:  e.pool.Arm(arm).Variant,
		Step:     e.step,
		Features: x,
	}
	e.metrics.observeStep(score.Variant.String(), score.Value)

	if e.opts.EvolutionInterval > 0 && e.step%e.opts.EvolutionInterval == 0 {
		e.evolve()
	}
	return score
}

// fanOut collects every arm's raw score for x. Arms are independent, so
// with more than one worker they are updated concurrently.
func (e *Ensemble) fanOut(x []float64) []float64 {
	n := e.pool.Len()
	raw := make([]float64, n)
	if e.opts.Workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			raw[i] = e.pool.Arm(i).Detector.FitScorePartial(x)
		}
		return raw
	}

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i := 0; i < n; i++ {
		d := e.pool.Arm(i).Detector
		g.Go(func() error {
			raw[i] = d.FitScorePartial(x)
			return nil
		})
	}
	_ = g.Wait()
	return raw
}

func (e *Ensemble) evolve() {
	ev := e.pool.Evolve()
	e.log.Info("pool evolved",
		zap.Int64("step", e.step),
		zap.Float64("sigma", ev.Sigma),
		zap.Float64("decay", ev.Decay),
		zap.Int("best_arm", ev.Ranking[0]),
		zap.Int("mutated", len(ev.Mutated)),
		zap.Int("guarded", len(ev.Guarded)),
		zap.String("variants", formatMix(ev.Variants)),
	)
	e.metrics.observeEvolution(ev)
	e.metrics.observePool(e.pool)
}

// Process scores samples from in until it is closed or ctx is done.
func (e *Ensemble) Process(ctx context.Context, in <-chan []float64, out chan<- detectors.Score) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-in:
			if !ok {
				return nil
			}

			select {
			case out <- e.Score(sample):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Step returns the number of instances processed.
func (e *Ensemble) Step() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// Sigma returns the current exploration multiplier.
func (e *Ensemble) Sigma() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Sigma()
}

// Decay returns the current bandit decay.
func (e *Ensemble) Decay() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bandit.Decay()
}

// Options returns the settings the ensemble was built with.
func (e *Ensemble) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	opts := e.opts
	opts.Variants = slices.Clone(e.opts.Variants)
	opts.Scaling = detectors.Scaling{
		Mins: slices.Clone(e.opts.Scaling.Mins),
		Maxs: slices.Clone(e.opts.Scaling.Maxs),
	}
	return opts
}

// Arms describes every arm of the pool in slot order.
func (e *Ensemble) Arms() []ArmInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	acq := e.bandit.Acquire(e.opts.Acquisition)
	out := make([]ArmInfo, e.pool.Len())
	for i := range out {
		a := e.pool.Arm(i)
		out[i] = ArmInfo{
			Slot:        i,
			Variant:     a.Variant,
			Params:      a.Params.Clone(),
			Pulls:       e.bandit.Pulls(i),
			Loss:        e.bandit.Mean(i),
			Acquisition: acq[i],
			ScoreMean:   a.Normalizer.Mean(),
			Scored:      a.Normalizer.Count(),
		}
	}
	return out
}

// formatMix renders per-variant arm counts in canonical variant order.
func formatMix(counts map[detectors.Variant]int) string {
	var parts []string
	for _, v := range detectors.Variants {
		if c := counts[v]; c > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", v, c))
		}
	}
	return strings.Join(parts, " ")
}
