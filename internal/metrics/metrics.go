// Package metrics exposes Prometheus counters for the pantry service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	reconciles    *prometheus.CounterVec
	adjustments   prometheus.Counter
	deletions     prometheus.Counter
	lookups       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	scansRejected prometheus.Counter
	backups       *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "reconciles_total",
			Help:      "Scan reconciliations by result (created, merged, invalid, failed).",
		}, []string{"result"}),
		adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "adjustments_total",
			Help:      "Manual quantity adjustments.",
		}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "deletions_total",
			Help:      "Items removed by explicit user action.",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "lookups_total",
			Help:      "Product lookups by outcome (catalog, upstream, placeholder).",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "notifications_total",
			Help:      "Expiry notification events by outcome.",
		}, []string{"outcome"}),
		scansRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "scans_rejected_total",
			Help:      "Scans rejected because another scan was in flight.",
		}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pantry",
			Name:      "backups_total",
			Help:      "Database backups by result (completed, failed).",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconciles,
		m.adjustments,
		m.deletions,
		m.lookups,
		m.notifications,
		m.scansRejected,
		m.backups,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReconcileResult(result string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(result).Inc()
}

func (m *Metrics) Adjusted() {
	if m == nil {
		return
	}
	m.adjustments.Inc()
}

func (m *Metrics) Deleted() {
	if m == nil {
		return
	}
	m.deletions.Inc()
}

func (m *Metrics) ScanRejected() {
	if m == nil {
		return
	}
	m.scansRejected.Inc()
}

// LookupResult satisfies lookup.Observer.
func (m *Metrics) LookupResult(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

// NotificationResult satisfies notify.Observer.
func (m *Metrics) NotificationResult(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// BackupResult satisfies backup.Recorder.
func (m *Metrics) BackupResult(result string) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(result).Inc()
}
