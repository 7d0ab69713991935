package cstone

import "github.com/prometheus/client_golang/prometheus"

// PrometheusObserver is an Observer backed by client_golang collector types,
// so the same append/read/erase/dispatch events a Metrics instance counts
// internally can also be exported through a prometheus.Registerer.
type PrometheusObserver struct {
	appendTotal   *prometheus.CounterVec
	readTotal     *prometheus.CounterVec
	eraseTotal    *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
	latency       prometheus.Histogram
	eventsTotal   prometheus.Counter
	dispatchTotal prometheus.Counter
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates collectors under the given namespace and
// registers them with reg. Pass prometheus.DefaultRegisterer to use the
// global registry.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	p := &PrometheusObserver{
		appendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "append_total", Help: "Block log append attempts by outcome.",
		}, []string{"outcome"}),
		readTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "read_total", Help: "Block log read attempts by outcome.",
		}, []string{"outcome"}),
		eraseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "erase_total", Help: "Sector erases by outcome.",
		}, []string{"outcome"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_total", Help: "Bytes moved through the block log by direction.",
		}, []string{"direction"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "op_latency_seconds", Help: "Storage operation latency.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
		}),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cron_events_dispatched_total", Help: "Scheduled events dispatched.",
		}),
		dispatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cron_dispatch_total", Help: "Dispatch calls made by the scheduler.",
		}),
	}

	reg.MustRegister(p.appendTotal, p.readTotal, p.eraseTotal, p.bytesTotal, p.latency, p.eventsTotal, p.dispatchTotal)
	return p
}

func outcome(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// ObserveAppend implements Observer.
func (p *PrometheusObserver) ObserveAppend(bytes uint64, latencyNs uint64, success bool) {
	p.appendTotal.WithLabelValues(outcome(success)).Inc()
	if success {
		p.bytesTotal.WithLabelValues("append").Add(float64(bytes))
	}
	p.latency.Observe(float64(latencyNs) / 1e9)
}

// ObserveRead implements Observer.
func (p *PrometheusObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	p.readTotal.WithLabelValues(outcome(success)).Inc()
	if success {
		p.bytesTotal.WithLabelValues("read").Add(float64(bytes))
	}
	p.latency.Observe(float64(latencyNs) / 1e9)
}

// ObserveErase implements Observer.
func (p *PrometheusObserver) ObserveErase(latencyNs uint64, success bool) {
	p.eraseTotal.WithLabelValues(outcome(success)).Inc()
	p.latency.Observe(float64(latencyNs) / 1e9)
}

// ObserveDispatch implements Observer.
func (p *PrometheusObserver) ObserveDispatch(eventCount uint32) {
	p.dispatchTotal.Inc()
	p.eventsTotal.Add(float64(eventCount))
}
