package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-run reconciliation metrics. A run is a
// short-lived process with no scrape endpoint, so the registry is
// written out in text exposition format for the node_exporter textfile
// collector (see WriteTextfile).
type Metrics struct {
	registry *prometheus.Registry

	HostsTotal   *prometheus.CounterVec
	ActionsTotal *prometheus.CounterVec
	RunDuration  prometheus.Histogram
}

// NewMetrics builds a registry with the reconciler's collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HostsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hardshell_hosts_total",
		Help: "Hosts processed, by outcome.",
	}, []string{"outcome"})

	m.ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hardshell_actions_total",
		Help: "Actions executed, by resource kind and outcome.",
	}, []string{"kind", "outcome"})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hardshell_run_duration_seconds",
		Help:    "Wall-clock duration of a full fleet run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	m.registry.MustRegister(m.HostsTotal, m.ActionsTotal, m.RunDuration)
	return m
}

// WriteTextfile dumps the registry to path in exposition format. The
// write is atomic (temp file + rename) courtesy of the client library.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
