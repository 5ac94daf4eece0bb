package ensemble

import "math"

// Normalizer tracks the running range and moments of one arm's raw scores
// and maps each raw score into [0, 1].
type Normalizer struct {
	min   float64
	max   float64
	sum   float64
	sumSq float64
	count int64
}

// NewNormalizer returns an empty normalizer.
func NewNormalizer() *Normalizer {
	n := &Normalizer{}
	n.Reset()
	return n
}

// Process records raw and returns (raw-min)/(max-min), or 0 while every
// observed score is equal. Callers must not pass NaN.
func (n *Normalizer) Process(raw float64) float64 {
	if raw < n.min {
		n.min = raw
	}
	if raw > n.max {
		n.max = raw
	}
	n.count++
	n.sum += raw
	n.sumSq += raw * raw

	span := n.max - n.min
	if span == 0 {
		return 0
	}
	return (raw - n.min) / span
}

// Mean returns the mean raw score, 0 before any observation.
func (n *Normalizer) Mean() float64 {
	if n.count == 0 {
		return 0
	}
	return n.sum / float64(n.count)
}

// Variance returns the population variance of raw scores, 0 with fewer
// than two observations.
func (n *Normalizer) Variance() float64 {
	if n.count < 2 {
		return 0
	}
	m := n.Mean()
	return n.sumSq/float64(n.count) - m*m
}

// Count returns the number of processed scores.
func (n *Normalizer) Count() int64 {
	return n.count
}

// Reset forgets every observation.
func (n *Normalizer) Reset() {
	*n = Normalizer{min: math.Inf(1), max: math.Inf(-1)}
}

// normalizerState is the persisted form of a Normalizer. Infinite bounds
// of an empty normalizer are stored as a zero count.
type normalizerState struct {
	Min, Max, Sum, SumSq float64
	Count                int64
}

func (n *Normalizer) state() normalizerState {
	if n.count == 0 {
		return normalizerState{}
	}
	return normalizerState{Min: n.min, Max: n.max, Sum: n.sum, SumSq: n.sumSq, Count: n.count}
}

func (n *Normalizer) restore(s normalizerState) {
	if s.Count == 0 {
		n.Reset()
		return
	}
	*n = Normalizer{min: s.Min, max: s.Max, sum: s.Sum, sumSq: s.SumSq, count: s.Count}
}
