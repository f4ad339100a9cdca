// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus collectors nodewatch exports.
//
// Collectors live on a private registry rather than the global default
// so tests can build independent instances. All recording methods are
// safe to call on a nil *Metrics, which is what library code receives
// when metrics are disabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nodewatch"

// Metrics is the set of nodewatch collectors.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	nodeErrors    *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	powerCycles   *prometheus.CounterVec
	nodeStatus    *prometheus.GaugeVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by network and result (ok, empty, fetch_error, error).",
		}, []string{"network", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of one poll cycle including dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"network"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Nodes skipped in a cycle because their record could not be processed.",
		}, []string{"network"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert events emitted by kind.",
		}, []string{"network", "kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-observer deliveries by result (sent, unreachable, failed, filtered).",
		}, []string{"network", "result"}),
		powerCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "power_cycles_total",
			Help:      "Power cycle attempts by result (success, failure, no_controller).",
		}, []string{"network", "result"}),
		nodeStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Tracked nodes by current status.",
		}, []string{"network", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.cycleDuration, m.nodeErrors, m.alerts,
		m.deliveries, m.powerCycles, m.nodeStatus,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(network, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(network, result).Inc()
	m.cycleDuration.WithLabelValues(network).Observe(elapsed.Seconds())
}

// AddNodeErrors counts nodes skipped in a cycle.
func (m *Metrics) AddNodeErrors(network string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.nodeErrors.WithLabelValues(network).Add(float64(n))
}

// CountAlert records an emitted alert event.
func (m *Metrics) CountAlert(network, kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(network, kind).Inc()
}

// CountDelivery records the outcome of one observer delivery.
func (m *Metrics) CountDelivery(network, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(network, result).Inc()
}

// CountPowerCycle records a power cycle attempt.
func (m *Metrics) CountPowerCycle(network, result string) {
	if m == nil {
		return
	}
	m.powerCycles.WithLabelValues(network, result).Inc()
}

// SetNodeStatus replaces the per-status node counts for a network.
func (m *Metrics) SetNodeStatus(network string, counts map[string]int) {
	if m == nil {
		return
	}
	m.nodeStatus.DeletePartialMatch(prometheus.Labels{"network": network})
	for status, count := range counts {
		m.nodeStatus.WithLabelValues(network, status).Set(float64(count))
	}
}
