package detectors

import "fmt"

// ParamSpec describes the candidate values of one hyperparameter.
type ParamSpec struct {
	Name    string
	Kind    Kind
	Ints    []int
	Floats  []float64
	Choices []string
}

// Len returns the number of candidates.
func (s ParamSpec) Len() int {
	switch s.Kind {
	case KindInt:
		return len(s.Ints)
	case KindFloat:
		return len(s.Floats)
	default:
		return len(s.Choices)
	}
}

// At returns candidate i as a Value.
func (s ParamSpec) At(i int) Value {
	switch s.Kind {
	case KindInt:
		return IntValue(s.Ints[i])
	case KindFloat:
		return FloatValue(s.Floats[i])
	default:
		return ChoiceValue(s.Choices[i])
	}
}

// Numbers returns numeric candidates widened to float64. Nil for choices.
func (s ParamSpec) Numbers() []float64 {
	switch s.Kind {
	case KindInt:
		out := make([]float64, len(s.Ints))
		for i, v := range s.Ints {
			out[i] = float64(v)
		}
		return out
	case KindFloat:
		return append([]float64(nil), s.Floats...)
	default:
		return nil
	}
}

// Index returns the position of v among the candidates, or -1.
func (s ParamSpec) Index(v Value) int {
	for i := 0; i < s.Len(); i++ {
		if s.At(i) == v {
			return i
		}
	}
	return -1
}

// Grid is the ordered hyperparameter search space of one variant.
type Grid []ParamSpec

func ints(name string, v ...int) ParamSpec {
	return ParamSpec{Name: name, Kind: KindInt, Ints: v}
}

func floats(name string, v ...float64) ParamSpec {
	return ParamSpec{Name: name, Kind: KindFloat, Floats: v}
}

func choices(name string, v ...string) ParamSpec {
	return ParamSpec{Name: name, Kind: KindChoice, Choices: v}
}

var grids = map[Variant]Grid{
	HalfSpaceTrees: {
		ints("num_trees", 8, 16, 32, 64, 128),
		ints("max_depth", 5, 8, 10, 12, 15),
		ints("window_size", 50, 100, 150, 200, 250),
	},
	IForestASD: {
		ints("window_size", 512, 1024, 2048, 4096),
		ints("n_estimators", 16, 32, 64, 128),
		ints("max_samples", 64, 128, 256, 512),
		floats("contamination", 0.05, 0.1, 0.15, 0.2),
		floats("anomaly_rate_threshold", 0.1, 0.2, 0.3, 0.4),
	},
	RobustRandomCutForest: {
		ints("num_trees", 8, 16, 32, 64, 128),
		ints("tree_size", 64, 128, 256, 512),
		ints("shingle_size", 1, 2, 3),
	},
	LODA: {
		ints("num_bins", 50, 100, 150, 200),
		ints("num_random_cuts", 5, 10, 25, 50),
	},
	OnlineIsolationForest: {
		ints("branching_factor", 2, 3, 4),
		choices("split", "axisparallel", "hyperplane"),
		ints("num_trees", 8, 16, 32, 64, 128),
		ints("max_leaf_samples", 16, 32, 64),
		ints("window_size", 512, 1024, 2048, 4096),
		choices("growth_criterion", "adaptive", "depth", "size"),
		floats("subsample", 0.1, 0.25, 0.5, 0.75, 1.0),
	},
}

// GridFor returns the hyperparameter grid of a variant.
func GridFor(v Variant) Grid {
	g, ok := grids[v]
	if !ok {
		panic(fmt.Sprintf("detectors: no grid for %s", v))
	}
	return g
}

// Validate checks that p holds a grid value of the right kind for every
// parameter in g.
func (g Grid) Validate(p Params) error {
	for _, spec := range g {
		v, ok := p[spec.Name]
		if !ok {
			return fmt.Errorf("missing parameter %q", spec.Name)
		}
		if v.Kind != spec.Kind {
			return fmt.Errorf("parameter %q: got %s, want %s", spec.Name, v.Kind, spec.Kind)
		}
	}
	return nil
}
