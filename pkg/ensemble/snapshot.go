package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/hed1ad/autosad/pkg/detectors"
)

// snapshot is the persisted form of an Ensemble. Scorer internals and
// reward history are not kept; restored arms start with fresh scorers
// built from their configuration.
type snapshot struct {
	Options Options
	Step    int64
	Sigma   float64
	RNG     []byte
	Arms    []armState
	Bandit  banditState
}

type armState struct {
	Variant    detectors.Variant
	Params     detectors.Params
	Normalizer normalizerState
}

// Snapshot serializes the pool configuration and selection state.
func (e *Ensemble) Snapshot() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rng, err := e.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ensemble: marshal rng: %w", err)
	}

	s := snapshot{
		Options: e.opts,
		Step:    e.step,
		Sigma:   e.pool.Sigma(),
		RNG:     rng,
		Arms:    make([]armState, e.pool.Len()),
		Bandit:  e.bandit.state(),
	}
	for i := range s.Arms {
		a := e.pool.Arm(i)
		s.Arms[i] = armState{Variant: a.Variant, Params: a.Params.Clone(), Normalizer: a.Normalizer.state()}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("ensemble: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the ensemble state with a snapshot. The worker count,
// logger and metrics of e are kept; every other option comes from the
// snapshot.
func (e *Ensemble) Restore(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("ensemble: decode snapshot: %w", err)
	}
	if err := s.Options.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotMismatch, err)
	}
	n := s.Options.PoolSize
	if len(s.Arms) != n || len(s.Bandit.Pulls) != n || len(s.Bandit.Mean) != n {
		return fmt.Errorf("%w: pool of %d arms with %d configurations", ErrSnapshotMismatch, n, len(s.Arms))
	}
	for i, a := range s.Arms {
		if !knownVariant(a.Variant) {
			return fmt.Errorf("%w: arm %d has unknown variant %d", ErrSnapshotMismatch, i, int(a.Variant))
		}
		if err := detectors.GridFor(a.Variant).Validate(a.Params); err != nil {
			return fmt.Errorf("%w: arm %d: %v", ErrSnapshotMismatch, i, err)
		}
	}

	src := &rand.PCG{}
	if err := src.UnmarshalBinary(s.RNG); err != nil {
		return fmt.Errorf("%w: rng: %v", ErrSnapshotMismatch, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	workers := e.opts.Workers
	e.opts = s.Options
	e.opts.Workers = workers
	e.src = src
	e.rng = rand.New(src)

	e.bandit = NewBanditGate(n, s.Options.BanditDecay)
	e.bandit.restore(s.Bandit)
	reward, err := NewRewardCalculator(e.opts.Reward, n, e.opts.RewardWindow)
	if err != nil {
		return err
	}
	e.reward = reward

	// Arm seeds come from their own stream so the restored generator
	// continues exactly where the snapshot left it.
	seeds := rand.New(rand.NewPCG(uint64(s.Step), e.opts.Seed))
	arms := make([]*Arm, n)
	for i, a := range s.Arms {
		arms[i] = newArm(a.Variant, a.Params, e.opts.Scaling, seeds.Uint64())
		arms[i].Normalizer.restore(a.Normalizer)
	}

	e.pool = &Pool{
		arms:      arms,
		sampler:   NewSampler(e.rng),
		bandit:    e.bandit,
		reward:    e.reward,
		acq:       e.opts.Acquisition,
		variants:  e.opts.Variants,
		threshold: e.opts.DiversityThreshold,
		scaling:   e.opts.Scaling,
		sigma:     s.Sigma,
		log:       e.log,
	}
	e.step = s.Step

	e.log.Info("ensemble restored",
		zap.Int64("step", e.step),
		zap.Int("pool_size", n),
		zap.String("variants", formatMix(e.pool.Counts())),
	)
	e.metrics.observePool(e.pool)
	return nil
}
