// Package detectors provides the contract shared by all streaming anomaly scorers.
package detectors

import (
	"fmt"
	"strings"
)

// Detector is the common interface for all online anomaly scorers.
type Detector interface {
	// FitScorePartial updates the model with one sample and returns its raw
	// anomaly score. Scores are unbounded; higher means more anomalous.
	// Implementations must never block.
	FitScorePartial(sample []float64) float64
}

// Variant identifies a scorer family. The set is closed.
type Variant int

const (
	HalfSpaceTrees Variant = iota
	IForestASD
	RobustRandomCutForest
	LODA
	OnlineIsolationForest
)

// Variants lists every scorer family in canonical order.
var Variants = []Variant{
	HalfSpaceTrees,
	IForestASD,
	RobustRandomCutForest,
	LODA,
	OnlineIsolationForest,
}

var variantNames = map[Variant]string{
	HalfSpaceTrees:        "HalfSpaceTrees",
	IForestASD:            "IForestASD",
	RobustRandomCutForest: "RobustRandomCutForest",
	LODA:                  "LODA",
	OnlineIsolationForest: "OnlineIsolationForest",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// ParseVariant resolves a variant by name, case-insensitively.
func ParseVariant(name string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(variantNames[v], name) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown detector variant %q", name)
}

// Scaling carries the global feature ranges handed to scale-sensitive
// variants. It is fixed for the life of a stream.
type Scaling struct {
	Mins []float64
	Maxs []float64
}

// Valid reports whether both vectors are present and of equal length.
func (s Scaling) Valid() bool {
	return len(s.Mins) > 0 && len(s.Mins) == len(s.Maxs)
}

// Score represents the ensemble's verdict for one sample.
type Score struct {
	// Value is the normalized anomaly score in [0, 1].
	Value float64
	// Arm is the pool index whose score was reported.
	Arm int
	// Variant of the reporting arm.
	Variant Variant
	// Step is the 1-based position of the sample in the stream.
	Step int64
	// Features contains the original input features.
	Features []float64
}
