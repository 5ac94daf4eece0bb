package ensemble

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	e, err := New(WithPoolSize(4), WithVariants(lightVariants...), WithEvolutionInterval(40), WithMetrics(m))
	require.NoError(t, err)
	for _, x := range generateStream(100, 2, 10) {
		e.FitScorePartial(x)
	}

	assert.Equal(t, 100.0, testutil.ToFloat64(m.instances))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evolutions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.replaced.WithLabelValues("mutation")))
	assert.Equal(t, e.Sigma(), testutil.ToFloat64(m.sigma))
	assert.Equal(t, e.Decay(), testutil.ToFloat64(m.decay))

	var selected, pooled float64
	for _, v := range lightVariants {
		selected += testutil.ToFloat64(m.selections.WithLabelValues(v.String()))
		pooled += testutil.ToFloat64(m.poolMix.WithLabelValues(v.String()))
	}
	assert.Equal(t, 100.0, selected)
	assert.Equal(t, 4.0, pooled)

	n, err := testutil.GatherAndCount(reg, "autosad_ensemble_instances_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeStep("LODA", 0.5)
		m.observeEvolution(Evolution{})
	})
}
