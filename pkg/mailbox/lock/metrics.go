package lock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments mailbox locking with Prometheus collectors.
//
// All methods are nil-safe: a handle built without WithMetrics carries a
// nil *Metrics and every recording call becomes a no-op, so the locking
// code never branches on whether instrumentation is attached.
type Metrics struct {
	acquireTotal       *prometheus.CounterVec
	waitDuration       *prometheus.HistogramVec
	holdDuration       prometheus.Histogram
	staleOverrideTotal *prometheus.CounterVec
	activeLocks        prometheus.Gauge
}

// NewMetrics creates the lock metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mboxd",
			Subsystem: "locks",
			Name:      "acquire_total",
			Help:      "Lock acquisition attempts by kind and result.",
		}, []string{"kind", "status"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mboxd",
			Subsystem: "locks",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting to acquire a mailbox lock.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 60, 300, 600},
		}, []string{"kind"}),
		holdDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mboxd",
			Subsystem: "locks",
			Name:      "hold_duration_seconds",
			Help:      "Time a mailbox lock was held, from acquisition to full release.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 60, 300, 600},
		}),
		staleOverrideTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mboxd",
			Subsystem: "locks",
			Name:      "stale_override_total",
			Help:      "Stale dotlock handling outcomes.",
		}, []string{"status"}),
		activeLocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mboxd",
			Subsystem: "locks",
			Name:      "active",
			Help:      "Mailboxes currently locked by this process.",
		}),
	}

	reg.MustRegister(
		m.acquireTotal,
		m.waitDuration,
		m.holdDuration,
		m.staleOverrideTotal,
		m.activeLocks,
	)
	return m
}

func (m *Metrics) acquire(kind Kind, status string) {
	if m == nil {
		return
	}
	m.acquireTotal.WithLabelValues(kind.String(), status).Inc()
}

func (m *Metrics) observeWait(kind Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

func (m *Metrics) observeHold(d time.Duration) {
	if m == nil {
		return
	}
	m.holdDuration.Observe(d.Seconds())
}

func (m *Metrics) staleOverride(status string) {
	if m == nil {
		return
	}
	m.staleOverrideTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) activeInc() {
	if m == nil {
		return
	}
	m.activeLocks.Inc()
}

func (m *Metrics) activeDec() {
	if m == nil {
		return
	}
	m.activeLocks.Dec()
}
