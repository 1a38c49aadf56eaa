package metrics_test

import (
	"testing"

	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	m := metrics.NewMetrics(reg)
	m.Materializations.WithLabelValues("complete", "ok").Inc()
	m.RaceResolutions.Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(m.Materializations.WithLabelValues("complete", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RaceResolutions), 0)
	assert.Panics(t, func() { metrics.NewMetrics(reg) })
}
