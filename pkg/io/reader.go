// Package io provides input/output utilities for streaming data through an
// ensemble.
package io

import (
	"context"
	"time"

	"github.com/hed1ad/autosad/pkg/detectors"
)

// Sample is one instance read from a source.
type Sample struct {
	Features []float64
	// Labeled reports whether the source carried ground truth.
	Labeled bool
	Anomaly bool
	Time    time.Time
}

// Reader is the interface for reading data from various sources.
type Reader interface {
	// Read returns the complete dataset.
	Read() ([]Sample, error)

	// Stream returns a channel of samples for real-time processing.
	Stream(ctx context.Context) (<-chan Sample, error)

	// Close releases resources.
	Close() error
}

// FeatureExtractor names the features produced by a source.
type FeatureExtractor interface {
	FeatureNames() []string
}

// Writer is the interface for writing scoring results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close flushes and releases resources.
	Close() error
}

// Result is the ensemble's verdict on one sample.
type Result struct {
	Step     int64          `json:"step"`
	Score    float64        `json:"score"`
	Arm      int            `json:"arm"`
	Variant  string         `json:"variant"`
	Labeled  bool           `json:"labeled,omitempty"`
	Anomaly  bool           `json:"anomaly,omitempty"`
	Features []float64      `json:"features,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewResult pairs a score with the sample it was computed for.
func NewResult(s detectors.Score, sample Sample) Result {
	return Result{
		Step:     s.Step,
		Score:    s.Value,
		Arm:      s.Arm,
		Variant:  s.Variant.String(),
		Labeled:  sample.Labeled,
		Anomaly:  sample.Anomaly,
		Features: sample.Features,
	}
}

// FeatureRange returns the per-feature minimum and maximum of samples.
// Samples shorter than the first one are ignored.
func FeatureRange(samples []Sample) detectors.Scaling {
	var r RangeScanner
	for _, s := range samples {
		r.Observe(s.Features)
	}
	return r.Scaling()
}

// RangeScanner accumulates feature bounds one sample at a time.
type RangeScanner struct {
	mins, maxs []float64
}

// Observe widens the bounds to include x.
func (r *RangeScanner) Observe(x []float64) {
	if r.mins == nil {
		r.mins = append([]float64(nil), x...)
		r.maxs = append([]float64(nil), x...)
		return
	}
	if len(x) < len(r.mins) {
		return
	}
	for i := range r.mins {
		r.mins[i] = min(r.mins[i], x[i])
		r.maxs[i] = max(r.maxs[i], x[i])
	}
}

// Scaling returns the bounds seen so far.
func (r *RangeScanner) Scaling() detectors.Scaling {
	return detectors.Scaling{
		Mins: append([]float64(nil), r.mins...),
		Maxs: append([]float64(nil), r.maxs...),
	}
}
