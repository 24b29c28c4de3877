package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit record persistence.
type Metrics struct {
	Records        *prometheus.CounterVec
	WriteFailures  prometheus.Counter
	WritesSkipped  prometheus.Counter
	CriticalEvents prometheus.Counter
	WriteDuration  prometheus.Histogram
	InflightWrites prometheus.Gauge
}

// NewMetrics registers audit metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lendaudit_audit_records_total",
			Help: "Total number of audit records persisted, by outcome status",
		}, []string{"status"}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lendaudit_audit_write_failures_total",
			Help: "Total number of audit records that could not be persisted",
		}),
		WritesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "lendaudit_audit_writes_skipped_total",
			Help: "Total number of audit records dropped because the store circuit was open",
		}),
		CriticalEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "lendaudit_audit_critical_events_total",
			Help: "Total number of critical or PII audit records surfaced to the log collector",
		}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendaudit_audit_write_duration_seconds",
			Help:    "Latency of audit record writes",
			Buckets: prometheus.DefBuckets,
		}),
		InflightWrites: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lendaudit_audit_inflight_writes",
			Help: "Audit record writes currently in flight",
		}),
	}
}

func (m *Metrics) incRecord(status Status) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) incWriteFailure() {
	if m == nil {
		return
	}
	m.WriteFailures.Inc()
}

func (m *Metrics) incSkipped() {
	if m == nil {
		return
	}
	m.WritesSkipped.Inc()
}

func (m *Metrics) incCritical() {
	if m == nil {
		return
	}
	m.CriticalEvents.Inc()
}

func (m *Metrics) observeWrite(seconds float64) {
	if m == nil {
		return
	}
	m.WriteDuration.Observe(seconds)
}

func (m *Metrics) addInflight(delta float64) {
	if m == nil {
		return
	}
	m.InflightWrites.Add(delta)
}
