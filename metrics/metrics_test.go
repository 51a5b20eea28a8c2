package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.CacheSet()
	m.CacheError("get")
	m.SourceFetch()
	m.Request("hit")
	m.ObserveTransform(10 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheSets))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceFetches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("hit")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.CacheSet()
		m.CacheError("set")
		m.SourceFetch()
		m.Request("error")
		m.ObserveTransform(time.Second)
	})
}
