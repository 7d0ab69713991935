package cstone

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Observer receives events from the storage and scheduling subsystems.
// Implementations must be safe for concurrent use: methods are called from
// whatever goroutine happens to be performing the I/O.
type Observer interface {
	ObserveAppend(bytes uint64, latencyNs uint64, success bool)
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveErase(latencyNs uint64, success bool)
	ObserveDispatch(eventCount uint32)
}

// Metrics is the built-in Observer: a set of atomic counters plus a
// cumulative latency histogram, with no external dependency.
// PrometheusObserver (see metrics_prometheus.go) is a separate Observer that
// records the same events into client_golang collectors instead.
type Metrics struct {
	AppendOps   atomic.Uint64
	ReadOps     atomic.Uint64
	EraseOps    atomic.Uint64
	DispatchOps atomic.Uint64

	AppendBytes atomic.Uint64
	ReadBytes   atomic.Uint64

	AppendErrors atomic.Uint64
	ReadErrors   atomic.Uint64
	EraseErrors  atomic.Uint64

	EventsDispatchedTotal atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

var _ Observer = (*Metrics)(nil)

// NewMetrics creates a zeroed Metrics instance with its start time set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveAppend records a logdb/errlog block append.
func (m *Metrics) ObserveAppend(bytes uint64, latencyNs uint64, success bool) {
	m.AppendOps.Add(1)
	if success {
		m.AppendBytes.Add(bytes)
	} else {
		m.AppendErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveRead records a logdb block read.
func (m *Metrics) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveErase records a sector erase ahead of a wear-levelling wrap.
func (m *Metrics) ObserveErase(latencyNs uint64, success bool) {
	m.EraseOps.Add(1)
	if !success {
		m.EraseErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveDispatch records one cron.Dispatch call and the number of events it
// fired.
func (m *Metrics) ObserveDispatch(eventCount uint32) {
	m.DispatchOps.Add(1)
	m.EventsDispatchedTotal.Add(uint64(eventCount))
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time copy of Metrics, safe to read without racing
// against further updates.
type Snapshot struct {
	AppendOps, ReadOps, EraseOps, DispatchOps uint64
	AppendBytes, ReadBytes                    uint64
	AppendErrors, ReadErrors, EraseErrors      uint64
	EventsDispatchedTotal                     uint64
	AverageLatencyNs                          uint64
	UptimeNs                                  int64
}

// Snapshot takes a consistent-enough point-in-time read of m. Individual
// counters may be a few nanoseconds stale relative to each other; this is
// intended for periodic reporting, not for correctness-sensitive decisions.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		AppendOps:             m.AppendOps.Load(),
		ReadOps:               m.ReadOps.Load(),
		EraseOps:              m.EraseOps.Load(),
		DispatchOps:           m.DispatchOps.Load(),
		AppendBytes:           m.AppendBytes.Load(),
		ReadBytes:             m.ReadBytes.Load(),
		AppendErrors:          m.AppendErrors.Load(),
		ReadErrors:            m.ReadErrors.Load(),
		EraseErrors:           m.EraseErrors.Load(),
		EventsDispatchedTotal: m.EventsDispatchedTotal.Load(),
		UptimeNs:              time.Now().UnixNano() - m.StartTime.Load(),
	}
	if ops := m.OpCount.Load(); ops > 0 {
		s.AverageLatencyNs = m.TotalLatencyNs.Load() / ops
	}
	return s
}
