// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("main", "ok", time.Second)
	m.AddNodeErrors("main", 2)
	m.CountAlert("main", "WentOffline")
	m.CountDelivery("main", "sent")
	m.CountPowerCycle("main", "success")
	m.SetNodeStatus("main", map[string]int{"Up": 1})
}

func TestCounters(t *testing.T) {
	m := New()
	m.CountAlert("main", "WentOffline")
	m.CountAlert("main", "WentOffline")
	m.CountAlert("test", "CameOnline")

	if got := testutil.ToFloat64(m.alerts.WithLabelValues("main", "WentOffline")); got != 2 {
		t.Errorf("main WentOffline = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.alerts.WithLabelValues("test", "CameOnline")); got != 1 {
		t.Errorf("test CameOnline = %v, want 1", got)
	}
}

func TestSetNodeStatusReplacesPreviousCounts(t *testing.T) {
	m := New()
	m.SetNodeStatus("main", map[string]int{"Up": 3, "Down": 1})
	m.SetNodeStatus("main", map[string]int{"Up": 4})

	if got := testutil.ToFloat64(m.nodeStatus.WithLabelValues("main", "Up")); got != 4 {
		t.Errorf("Up = %v, want 4", got)
	}
	// Down was dropped by the second call, so re-creating it reads zero.
	if got := testutil.ToFloat64(m.nodeStatus.WithLabelValues("main", "Down")); got != 0 {
		t.Errorf("Down = %v, want 0", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveCycle("dev", "ok", 250*time.Millisecond)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	response, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)

	for _, want := range []string{
		`nodewatch_poll_cycles_total{network="dev",result="ok"} 1`,
		"nodewatch_poll_cycle_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
