package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Operations      *prometheus.CounterVec
	SlotComputation prometheus.Histogram
	SlotsReturned   prometheus.Histogram
	SideEffectFails *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Scheduling operations by name and outcome",
		}, []string{"operation", "result"}),
		SlotComputation: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "availability_duration_seconds",
			Help:      "Time spent computing available slots for a date",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		SlotsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "available_slots",
			Help:      "Number of bookable slots returned per availability query",
			Buckets:   prometheus.LinearBuckets(0, 1, 12),
		}),
		SideEffectFails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "side_effect_failures_total",
			Help:      "Reminder and audit emissions that failed",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Observe(operation, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveAvailability(started time.Time, slots int) {
	if m == nil {
		return
	}
	m.SlotComputation.Observe(time.Since(started).Seconds())
	m.SlotsReturned.Observe(float64(slots))
}

func (m *Metrics) SideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.SideEffectFails.WithLabelValues(kind).Inc()
}
