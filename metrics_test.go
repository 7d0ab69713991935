package cstone

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAppend(t *testing.T) {
	m := NewMetrics()
	m.ObserveAppend(128, 5_000, true)
	m.ObserveAppend(64, 5_000, false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.AppendOps)
	assert.Equal(t, uint64(128), snap.AppendBytes)
	assert.Equal(t, uint64(1), snap.AppendErrors)
}

func TestMetricsRecordReadAndErase(t *testing.T) {
	m := NewMetrics()
	m.ObserveRead(256, 1_000, true)
	m.ObserveErase(50_000, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ReadOps)
	assert.Equal(t, uint64(256), snap.ReadBytes)
	assert.Equal(t, uint64(1), snap.EraseOps)
	assert.Equal(t, uint64(0), snap.EraseErrors)
}

func TestMetricsRecordDispatch(t *testing.T) {
	m := NewMetrics()
	m.ObserveDispatch(3)
	m.ObserveDispatch(1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.DispatchOps)
	assert.Equal(t, uint64(4), snap.EventsDispatchedTotal)
}

func TestMetricsAverageLatency(t *testing.T) {
	m := NewMetrics()
	m.ObserveRead(1, 100, true)
	m.ObserveRead(1, 300, true)

	snap := m.Snapshot()
	assert.Equal(t, uint64(200), snap.AverageLatencyNs)
}

func TestPrometheusObserverRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg, "cstone_test")

	obs.ObserveAppend(10, 1_000, true)
	obs.ObserveRead(20, 1_000, false)
	obs.ObserveErase(1_000, true)
	obs.ObserveDispatch(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
