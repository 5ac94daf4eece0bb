// Package evaluation measures how well emitted scores separate labelled
// anomalies from normal instances.
package evaluation

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when the labels contain only one class.
var ErrSingleClass = errors.New("evaluation: AUROC needs both normal and anomalous labels")

// Recorder accumulates (score, label) pairs from a stream.
type Recorder struct {
	scores    []float64
	labels    []bool
	positives int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Add records one scored instance.
func (r *Recorder) Add(score float64, anomaly bool) {
	r.scores = append(r.scores, score)
	r.labels = append(r.labels, anomaly)
	if anomaly {
		r.positives++
	}
}

// Len returns the number of recorded instances.
func (r *Recorder) Len() int {
	return len(r.scores)
}

// Positives returns the number of anomalous instances.
func (r *Recorder) Positives() int {
	return r.positives
}

// AUROC returns the area under the ROC curve of the recorded scores.
func (r *Recorder) AUROC() (float64, error) {
	return AUROC(r.scores, r.labels)
}

// Summary describes a finished evaluation.
type Summary struct {
	Instances int
	Anomalies int
	AUROC     float64
}

// Summary computes the evaluation over everything recorded.
func (r *Recorder) Summary() (Summary, error) {
	auc, err := r.AUROC()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Instances: r.Len(), Anomalies: r.positives, AUROC: auc}, nil
}

// AUROC computes the area under the ROC curve for scores, where higher
// scores should indicate anomalies. Tied scores count half.
func AUROC(scores []float64, anomalies []bool) (float64, error) {
	if len(scores) != len(anomalies) {
		return 0, errors.New("evaluation: scores and labels differ in length")
	}

	idx := make([]int, len(scores))
	pos := 0
	for i := range idx {
		idx[i] = i
		if anomalies[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(scores) {
		return 0, ErrSingleClass
	}

	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })
	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		y[i] = scores[j]
		classes[i] = anomalies[j]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
