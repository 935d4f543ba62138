// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ResolutionsTotal.Inc()
	m.DirtySets.Set(3)
	m.ControlRequestsTotal.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(reg).ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"alluviumd_resolutions_total",
		"alluviumd_dirty_sets 3",
		`alluviumd_control_requests_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestObserveHelpersUpdateCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveResolution(true)
	m.ObserveResolution(false)
	m.ObserveReload(true)
	m.ObserveReload(false)
	m.SetDirtySets(2)
	m.ObserveControlRequest("ok")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(reg).ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"alluviumd_resolutions_total 2",
		"alluviumd_resolution_failures_total 1",
		"alluviumd_reloads_total 1",
		"alluviumd_reload_failures_total 1",
		"alluviumd_dirty_sets 2",
		`alluviumd_control_requests_total{outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestObserveHelpersNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResolution(true)
	m.ObserveReload(false)
	m.SetDirtySets(5)
	m.ObserveControlRequest("ok")
}
