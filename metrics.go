package kvfs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values used by Metrics.
const (
	LabelOp     = "op"
	LabelResult = "result"

	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics exposes Prometheus collectors for a Storage. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	backendWrites    *prometheus.CounterVec
	deferredFailures prometheus.Counter
	pendingWrites    prometheus.Gauge
	mirrorInodes     prometheus.Gauge
	syncDuration     prometheus.Histogram
}

// NewMetrics creates the storage collectors and registers them with reg.
// With a nil registry the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kvfs",
				Subsystem: "storage",
				Name:      "backend_writes_total",
				Help:      "Backend writes attempted, by operation and result",
			},
			[]string{LabelOp, LabelResult},
		),
		deferredFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kvfs",
				Subsystem: "storage",
				Name:      "deferred_failures_total",
				Help:      "Deferred backend writes that failed after the caller returned",
			},
		),
		pendingWrites: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kvfs",
				Subsystem: "storage",
				Name:      "pending_writes",
				Help:      "Backend writes queued but not yet completed",
			},
		),
		mirrorInodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kvfs",
				Subsystem: "storage",
				Name:      "mirror_inodes",
				Help:      "Inodes held in the in-memory mirror",
			},
		),
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kvfs",
				Subsystem: "storage",
				Name:      "sync_duration_seconds",
				Help:      "Time taken to load the mirror from the backend",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.backendWrites,
			m.deferredFailures,
			m.pendingWrites,
			m.mirrorInodes,
			m.syncDuration,
		)
	}
	return m
}

func (m *Metrics) observeWrite(op string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.backendWrites.WithLabelValues(op, result).Inc()
}

func (m *Metrics) deferredFailed() {
	if m == nil {
		return
	}
	m.deferredFailures.Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingWrites.Set(float64(n))
}

func (m *Metrics) setInodes(n int) {
	if m == nil {
		return
	}
	m.mirrorInodes.Set(float64(n))
}

func (m *Metrics) observeSync(d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(d.Seconds())
}
