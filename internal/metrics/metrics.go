// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the daemon's counters and gauges over Prometheus,
// the way internal/ebpf/metrics does for packet-plane statistics in this
// codebase.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter and gauge the event loop updates.
type Metrics struct {
	ResolutionsTotal        prometheus.Counter
	ResolutionFailuresTotal prometheus.Counter
	ReloadsTotal            prometheus.Counter
	ReloadFailuresTotal     prometheus.Counter
	DirtySets               prometheus.Gauge
	ControlRequestsTotal    *prometheus.CounterVec
}

// New constructs a Metrics bound to reg. Callers that don't need a
// non-default registry can pass prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alluviumd_resolutions_total",
			Help: "Total number of A-record resolution attempts.",
		}),
		ResolutionFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alluviumd_resolution_failures_total",
			Help: "Total number of resolution attempts that returned a transport error.",
		}),
		ReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alluviumd_reloads_total",
			Help: "Total number of successful kernel-set reloads.",
		}),
		ReloadFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alluviumd_reload_failures_total",
			Help: "Total number of kernel-set reloads that failed.",
		}),
		DirtySets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alluviumd_dirty_sets",
			Help: "Current number of sets with a pending reload.",
		}),
		ControlRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alluviumd_control_requests_total",
			Help: "Total number of control-socket requests, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.ResolutionsTotal,
		m.ResolutionFailuresTotal,
		m.ReloadsTotal,
		m.ReloadFailuresTotal,
		m.DirtySets,
		m.ControlRequestsTotal,
	)
	return m
}

// Handler returns the HTTP handler to mount at "/metrics".
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveResolution records one A-query attempt. It is nil-receiver safe so
// callers deep in the registry package (Address, IpSet) can hold a possibly
// absent *Metrics without a separate nil check at every call site.
func (m *Metrics) ObserveResolution(ok bool) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.Inc()
	if !ok {
		m.ResolutionFailuresTotal.Inc()
	}
}

// ObserveReload records the outcome of one IpSet.Reload call.
func (m *Metrics) ObserveReload(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ReloadsTotal.Inc()
		return
	}
	m.ReloadFailuresTotal.Inc()
}

// SetDirtySets records the current count of sets with a pending reload.
func (m *Metrics) SetDirtySets(n int) {
	if m == nil {
		return
	}
	m.DirtySets.Set(float64(n))
}

// ObserveControlRequest records one finished control-socket request by
// outcome ("ok", "not_found", "error", "malformed").
func (m *Metrics) ObserveControlRequest(outcome string) {
	if m == nil {
		return
	}
	m.ControlRequestsTotal.WithLabelValues(outcome).Inc()
}
