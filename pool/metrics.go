package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the pool's accounting and behavior as Prometheus
// instruments: gauges for the live/available/waiter accounting the pool's
// invariants are checked against, and counters/histograms for validation
// outcomes and borrow latency.
type Metrics struct {
	available        prometheus.Gauge
	live             prometheus.Gauge
	waiters          prometheus.Gauge
	validationFailed prometheus.Counter
	borrowLatency    prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pgwire",
			Subsystem: "pool",
			Name:      "available_connections",
			Help:      "Number of idle, ready-to-borrow connections currently held by the pool.",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pgwire",
			Subsystem: "pool",
			Name:      "live_connections",
			Help:      "Number of connections currently open, available or in use.",
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pgwire",
			Subsystem: "pool",
			Name:      "waiters",
			Help:      "Number of borrowers currently queued waiting for a connection.",
		}),
		validationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pgwire",
			Subsystem: "pool",
			Name:      "validation_failures_total",
			Help:      "Number of times a reused connection failed its validation query.",
		}),
		borrowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pgwire",
			Subsystem: "pool",
			Name:      "borrow_latency_seconds",
			Help:      "Time spent waiting for Borrow to return a connection.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Collectors returns the metric instruments for registration with a
// prometheus.Registerer, e.g. `registry.MustRegister(p.Collectors()...)`.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.metrics.available,
		p.metrics.live,
		p.metrics.waiters,
		p.metrics.validationFailed,
		p.metrics.borrowLatency,
	}
}

func (m *Metrics) setAvailable(n int) { m.available.Set(float64(n)) }
func (m *Metrics) setLive(n int)      { m.live.Set(float64(n)) }
func (m *Metrics) setWaiters(n int)   { m.waiters.Set(float64(n)) }
func (m *Metrics) incValidationFailure() { m.validationFailed.Inc() }

func (m *Metrics) observeBorrow(start time.Time) {
	m.borrowLatency.Observe(time.Since(start).Seconds())
}
