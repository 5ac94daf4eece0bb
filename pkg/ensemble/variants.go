package ensemble

import (
	"fmt"

	"github.com/hed1ad/autosad/pkg/detectors"
	"github.com/hed1ad/autosad/pkg/detectors/hstree"
	"github.com/hed1ad/autosad/pkg/detectors/iforest"
	"github.com/hed1ad/autosad/pkg/detectors/loda"
	"github.com/hed1ad/autosad/pkg/detectors/oiforest"
	"github.com/hed1ad/autosad/pkg/detectors/rcforest"
)

// NewDetector builds a scorer of variant v from params. Only
// HalfSpaceTrees consumes scaling. Missing parameters fall back to the
// scorer's own defaults.
func NewDetector(v detectors.Variant, params detectors.Params, scaling detectors.Scaling, seed uint64) detectors.Detector {
	switch v {
	case detectors.HalfSpaceTrees:
		opts := []hstree.Option{
			hstree.WithTrees(params.Int("num_trees", 25)),
			hstree.WithMaxDepth(params.Int("max_depth", 15)),
			hstree.WithWindowSize(params.Int("window_size", 250)),
			hstree.WithSeed(seed),
		}
		if scaling.Valid() {
			opts = append(opts, hstree.WithFeatureRange(scaling.Mins, scaling.Maxs))
		}
		return hstree.New(opts...)

	case detectors.IForestASD:
		return iforest.New(
			iforest.WithWindowSize(params.Int("window_size", 2048)),
			iforest.WithTrees(params.Int("n_estimators", 32)),
			iforest.WithSampleSize(params.Int("max_samples", 256)),
			iforest.WithContamination(params.Float("contamination", 0.1)),
			iforest.WithAnomalyRateThreshold(params.Float("anomaly_rate_threshold", 0.2)),
			iforest.WithSeed(seed),
		)

	case detectors.RobustRandomCutForest:
		return rcforest.New(
			rcforest.WithTrees(params.Int("num_trees", 32)),
			rcforest.WithTreeSize(params.Int("tree_size", 256)),
			rcforest.WithShingleSize(params.Int("shingle_size", 1)),
			rcforest.WithSeed(seed),
		)

	case detectors.LODA:
		return loda.New(
			loda.WithBins(params.Int("num_bins", 100)),
			loda.WithRandomCuts(params.Int("num_random_cuts", 10)),
			loda.WithSeed(seed),
		)

	case detectors.OnlineIsolationForest:
		return oiforest.New(
			oiforest.WithBranchingFactor(params.Int("branching_factor", 2)),
			oiforest.WithSplit(params.Choice("split", oiforest.SplitAxisParallel)),
			oiforest.WithTrees(params.Int("num_trees", 32)),
			oiforest.WithMaxLeafSamples(params.Int("max_leaf_samples", 32)),
			oiforest.WithWindowSize(params.Int("window_size", 2048)),
			oiforest.WithGrowthCriterion(params.Choice("growth_criterion", oiforest.GrowthAdaptive)),
			oiforest.WithSubsample(params.Float("subsample", 1)),
			oiforest.WithSeed(seed),
		)
	}
	panic(fmt.Sprintf("ensemble: no constructor for %s", v))
}
