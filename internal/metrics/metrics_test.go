package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry(), "clinic")

	m.Observe("create", "ok")
	m.Observe("create", "ok")
	m.Observe("create", "slot_unavailable")
	m.SideEffectFailed("reminder")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create", "slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SideEffectFails.WithLabelValues("reminder")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("create", "ok")
		m.ObserveAvailability(time.Now(), 3)
		m.SideEffectFailed("audit")
	})
}
