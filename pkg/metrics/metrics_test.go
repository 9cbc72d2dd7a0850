package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestObserveHelpers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveQuery("boolean", "ok", 0.002, 3)
	m.ObserveQuery("boolean", "invalid", 0.001, 0)
	m.ObserveBlock(10, 4096)
	m.ObserveBlock(5, 1024)
	m.ObserveBuild("ok", 42)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.Equal(t, 1.0, value(t, m.SearchQueriesTotal.WithLabelValues("boolean", "ok")))
	assert.Equal(t, 1.0, value(t, m.SearchQueriesTotal.WithLabelValues("boolean", "invalid")))
	assert.Equal(t, 2.0, value(t, m.BlocksFlushedTotal))
	assert.Equal(t, 15.0, value(t, m.DocsIndexedTotal))
	assert.Equal(t, 5120.0, value(t, m.BlockBytesTotal))
	assert.Equal(t, 42.0, value(t, m.TermsMergedTotal))
	assert.Equal(t, 1.0, value(t, m.CacheHitsTotal))
	assert.Equal(t, 2.0, value(t, m.CacheMissesTotal))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("ranked", "ok", 0, 0)
		m.ObserveBlock(1, 1)
		m.ObservePhase("merge", 1)
		m.ObserveBuild("ok", 1)
		m.ObserveCache(true)
		m.ObserveReload("ok")
	})
}
