package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics publishes the controller's observable state to Prometheus.
// All collectors are updated off the decision's transient record; the
// sample-path counters are exported directly from the ingest atomics.
type Metrics struct {
	decisions    *prometheus.CounterVec
	forcedGrants prometheus.Counter
	energy       prometheus.Gauge
	threshold    prometheus.Gauge
}

// NewMetrics registers the subsystem's collectors with the given
// registerer. Pass the ingest counters to export the sample-path
// counters as well; nil skips them.
func NewMetrics(reg prometheus.Registerer, ingest IngestCounters) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lbt",
			Name:      "decisions_total",
			Help:      "Channel access decisions by mode and status.",
		}, []string{"mode", "status"}),
		forcedGrants: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lbt",
			Name:      "forced_grants_total",
			Help:      "Grants issued with the channel still busy after the occupancy budget.",
		}),
		energy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lbt",
			Name:      "energy_dbm",
			Help:      "Channel energy at the last decision in dBm.",
		}),
		threshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lbt",
			Name:      "ed_threshold_dbm",
			Help:      "Energy detection threshold at the last decision in dBm.",
		}),
	}

	if ingest != nil {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "lbt",
			Name:      "samples_received_total",
			Help:      "IQ samples delivered by the front end.",
		}, func() float64 {
			received, _, _ := ingest.Counters()
			return float64(received)
		})
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "lbt",
			Name:      "samples_dropped_total",
			Help:      "IQ samples dropped on buffer contention.",
		}, func() float64 {
			_, dropped, _ := ingest.Counters()
			return float64(dropped)
		})
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "lbt",
			Name:      "buffer_overflows_total",
			Help:      "Eviction events caused by a full sample buffer.",
		}, func() float64 {
			_, _, overflows := ingest.Counters()
			return float64(overflows)
		})
	}

	return m
}

// ObserveDecision updates the collectors from one decision record.
func (m *Metrics) ObserveDecision(d Decision) {
	m.decisions.WithLabelValues(string(d.Mode), d.Status()).Inc()
	m.energy.Set(d.EnergyDBm)
	m.threshold.Set(d.ThresholdDBm)
	if d.Forced {
		m.forcedGrants.Inc()
	}
}
