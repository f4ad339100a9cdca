// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/metrics"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
	"github.com/bureau-foundation/nodewatch/lib/testutil"
	"github.com/bureau-foundation/nodewatch/lib/transition"
)

type fakeStatus map[string]scheduler.NetworkStatus

func (f fakeStatus) Networks() []string {
	return []string{"main", "test"}
}

func (f fakeStatus) Status(network string) (scheduler.NetworkStatus, bool) {
	status, ok := f[network]
	return status, ok
}

var observed = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func testStatus() fakeStatus {
	view := func(id node.ID, status node.Status) transition.NodeView {
		return transition.NodeView{
			NodeID: id,
			Entry: transition.Entry{
				Record: node.Record{
					ID:        id,
					UpdatedAt: observed.Add(-time.Minute),
					Power:     node.Power{State: node.PowerUp, Target: node.PowerUp},
				},
				Status:     status,
				ObservedAt: observed,
			},
			Wake: node.WakeState{MaxBootMinutes: 7},
		}
	}
	return fakeStatus{
		"main": {
			Network:            "main",
			State:              scheduler.Polling,
			Interval:           time.Minute,
			DefaultBootMinutes: 7,
			Nodes:              []transition.NodeView{view(7, node.StatusUp), view(42, node.StatusStandby)},
		},
		"test": {Network: "test", Interval: time.Minute, DefaultBootMinutes: 7, Nodes: []transition.NodeView{}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, handler http.Handler, path string) (*http.Response, []byte) {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	response := recorder.Result()
	body, _ := io.ReadAll(response.Body)
	return response, body
}

// --- routes ---

func TestHealth(t *testing.T) {
	response, body := get(t, NewRouter(testStatus(), nil, testLogger()), "/healthz")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}
	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["status"] != "ok" || decoded["version"] == "" {
		t.Errorf("body = %s", body)
	}
}

func TestListNetworks(t *testing.T) {
	response, body := get(t, NewRouter(testStatus(), nil, testLogger()), "/v1/networks")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", response.StatusCode, body)
	}
	var summaries []NetworkSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d networks, want 2", len(summaries))
	}
	main := summaries[0]
	if main.Network != "main" || main.State != scheduler.Polling || main.Nodes != 2 || main.IntervalSeconds != 60 {
		t.Errorf("main = %+v", main)
	}
	if main.StatusCounts["Up"] != 1 || main.StatusCounts["Standby"] != 1 {
		t.Errorf("status counts = %v", main.StatusCounts)
	}
}

func TestListNodes(t *testing.T) {
	router := NewRouter(testStatus(), nil, testLogger())

	response, body := get(t, router, "/v1/networks/main/nodes")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}
	var nodes []map[string]any
	if err := json.Unmarshal(body, &nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 || nodes[0]["node_id"] != float64(7) || nodes[1]["status"] != "Standby" {
		t.Errorf("nodes = %s", body)
	}

	response, body = get(t, router, "/v1/networks/test/nodes")
	if response.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("empty network: status %d, body %s", response.StatusCode, body)
	}
}

func TestGetNode(t *testing.T) {
	router := NewRouter(testStatus(), nil, testLogger())
	tests := []struct {
		path string
		code int
	}{
		{"/v1/networks/main/nodes/42", http.StatusOK},
		{"/v1/networks/main/nodes/99", http.StatusNotFound},
		{"/v1/networks/main/nodes/forty-two", http.StatusBadRequest},
		{"/v1/networks/dev/nodes/42", http.StatusNotFound},
	}
	for _, test := range tests {
		response, body := get(t, router, test.path)
		if response.StatusCode != test.code {
			t.Errorf("GET %s = %d, want %d (%s)", test.path, response.StatusCode, test.code, body)
		}
		if response.Header.Get("Content-Type") != "application/json" {
			t.Errorf("GET %s content type = %q", test.path, response.Header.Get("Content-Type"))
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.CountAlert("main", "WentOffline")

	response, body := get(t, NewRouter(testStatus(), m, testLogger()), "/metrics")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", response.StatusCode)
	}
	if !strings.Contains(string(body), `nodewatch_alerts_total{kind="WentOffline",network="main"} 1`) {
		t.Errorf("metrics output missing alert counter:\n%s", body)
	}

	response, _ = get(t, NewRouter(testStatus(), nil, testLogger()), "/metrics")
	if response.StatusCode != http.StatusNotFound {
		t.Errorf("/metrics without collectors = %d, want 404", response.StatusCode)
	}
}

// --- lifecycle ---

func TestServeAndShutdown(t *testing.T) {
	server, err := New(Config{Address: "127.0.0.1:0", Status: testStatus(), Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	response, err := http.Get("http://" + server.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", response.StatusCode)
	}

	cancel()
	if err := testutil.RequireReceive(t, served, 5*time.Second, "Serve returning"); err != nil {
		t.Errorf("Serve = %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Status: testStatus()}); err == nil {
		t.Error("New without address succeeded")
	}
	if _, err := New(Config{Address: ":0"}); err == nil {
		t.Error("New without status succeeded")
	}
}
