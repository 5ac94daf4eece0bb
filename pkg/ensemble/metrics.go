package ensemble

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes ensemble activity as Prometheus collectors.
type Metrics struct {
	instances   prometheus.Counter
	selections  *prometheus.CounterVec
	evolutions  prometheus.Counter
	replaced    *prometheus.CounterVec
	poolMix     *prometheus.GaugeVec
	sigma       prometheus.Gauge
	decay       prometheus.Gauge
	scoreValues prometheus.Histogram
}

// NewMetrics registers the ensemble collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		instances: f.NewCounter(prometheus.CounterOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "instances_total",
			Help:      "Instances scored by the ensemble",
		}),
		selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "selections_total",
			Help:      "Times an arm of each variant was selected",
		}, []string{"variant"}),
		evolutions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "evolutions_total",
			Help:      "Completed evolution cycles",
		}),
		replaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "arms_replaced_total",
			Help:      "Arms replaced during evolution",
		}, []string{"reason"}),
		poolMix: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "pool_arms",
			Help:      "Arms per variant in the pool",
		}, []string{"variant"}),
		sigma: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "exploration_sigma",
			Help:      "Current exploration multiplier",
		}),
		decay: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "bandit_decay",
			Help:      "Current bandit decay factor",
		}),
		scoreValues: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autosad",
			Subsystem: "ensemble",
			Name:      "score",
			Help:      "Distribution of emitted normalized scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func (m *Metrics) observeStep(variant string, score float64) {
	if m == nil {
		return
	}
	m.instances.Inc()
	m.selections.WithLabelValues(variant).Inc()
	m.scoreValues.Observe(score)
}

func (m *Metrics) observePool(p *Pool) {
	if m == nil {
		return
	}
	counts := p.Counts()
	for _, v := range p.variants {
		m.poolMix.WithLabelValues(v.String()).Set(float64(counts[v]))
	}
	m.sigma.Set(p.Sigma())
	m.decay.Set(p.bandit.Decay())
}

func (m *Metrics) observeEvolution(ev Evolution) {
	if m == nil {
		return
	}
	m.evolutions.Inc()
	m.replaced.WithLabelValues("mutation").Add(float64(len(ev.Mutated)))
	m.replaced.WithLabelValues("diversity").Add(float64(len(ev.Guarded)))
}
