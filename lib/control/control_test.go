// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/codec"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
	"github.com/bureau-foundation/nodewatch/lib/subscription"
	"github.com/bureau-foundation/nodewatch/lib/testutil"
	"github.com/bureau-foundation/nodewatch/lib/transition"
	"github.com/bureau-foundation/nodewatch/lib/waketimer"
	"github.com/bureau-foundation/nodewatch/messaging"
)

const observer = messaging.ObserverID("telegram:1001")

// fakeMonitor serves real engines without running any poll loop.
type fakeMonitor map[string]*transition.Engine

func (f fakeMonitor) Networks() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f fakeMonitor) Engine(network string) (*transition.Engine, bool) {
	engine, ok := f[network]
	return engine, ok
}

func (f fakeMonitor) Status(network string) (scheduler.NetworkStatus, bool) {
	engine, ok := f[network]
	if !ok {
		return scheduler.NetworkStatus{}, false
	}
	return scheduler.NetworkStatus{
		Network:            network,
		Interval:           time.Minute,
		DefaultBootMinutes: engine.Wake().DefaultMaxBootMinutes(),
		Nodes:              engine.Snapshot(),
	}, true
}

type harness struct {
	client  *Client
	monitor fakeMonitor
	store   *subscription.MemoryStore
}

func startServer(t *testing.T) *harness {
	t.Helper()
	monitor := fakeMonitor{}
	for _, name := range []string{"main", "test"} {
		engine, err := transition.New(transition.Config{Network: name, Wake: waketimer.New(0)})
		if err != nil {
			t.Fatal(err)
		}
		monitor[name] = engine
	}
	store := subscription.NewMemoryStore()

	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, nil)
	Register(server, monitor, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "control server stopping")
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "control server ready")

	return &harness{client: NewClient(socketPath), monitor: monitor, store: store}
}

func (h *harness) call(t *testing.T, action string, fields map[string]any, result any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.client.Call(ctx, action, fields, result)
}

// --- status ---

func TestStatus(t *testing.T) {
	h := startServer(t)

	var statuses []scheduler.NetworkStatus
	if err := h.call(t, ActionStatus, nil, &statuses); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 2 || statuses[0].Network != "main" || statuses[1].Network != "test" {
		t.Fatalf("statuses = %+v", statuses)
	}
	if statuses[0].DefaultBootMinutes != waketimer.DefaultMaxBootMinutes {
		t.Errorf("default boot minutes = %d", statuses[0].DefaultBootMinutes)
	}

	if err := h.call(t, ActionStatus, map[string]any{"network": "test"}, &statuses); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 || statuses[0].Network != "test" {
		t.Errorf("filtered statuses = %+v", statuses)
	}
}

// --- wake windows ---

func TestSetBootMinutes(t *testing.T) {
	h := startServer(t)

	var result BootMinutesResult
	err := h.call(t, ActionSetBootMinutes, map[string]any{"node_id": 42, "minutes": 15}, &result)
	if err != nil {
		t.Fatalf("set-boot-minutes: %v", err)
	}
	if result.Network != "main" || result.NodeID != 42 || result.Minutes != 15 {
		t.Errorf("result = %+v", result)
	}
	if got := h.monitor["main"].Wake().Get(42).MaxBootMinutes; got != 15 {
		t.Errorf("main/42 window = %d, want 15", got)
	}
	if got := h.monitor["test"].Wake().Get(42).MaxBootMinutes; got != waketimer.DefaultMaxBootMinutes {
		t.Errorf("test/42 window changed to %d", got)
	}
}

func TestSetDefaultAndAllBootMinutes(t *testing.T) {
	h := startServer(t)
	wake := h.monitor["test"].Wake()
	if err := wake.SetMaxBootMinutes(3, 20); err != nil {
		t.Fatal(err)
	}

	if err := h.call(t, ActionSetDefaultBootMinutes, map[string]any{"network": "test", "minutes": 9}, nil); err != nil {
		t.Fatal(err)
	}
	if wake.DefaultMaxBootMinutes() != 9 || wake.Get(3).MaxBootMinutes != 20 {
		t.Errorf("after default: default=%d node3=%d, want 9 and 20", wake.DefaultMaxBootMinutes(), wake.Get(3).MaxBootMinutes)
	}

	var result BootMinutesResult
	if err := h.call(t, ActionSetAllBootMinutes, map[string]any{"network": "test", "minutes": 11}, &result); err != nil {
		t.Fatal(err)
	}
	if wake.DefaultMaxBootMinutes() != 11 || wake.Get(3).MaxBootMinutes != 11 {
		t.Errorf("after all: default=%d node3=%d, want 11", wake.DefaultMaxBootMinutes(), wake.Get(3).MaxBootMinutes)
	}
	if result.Nodes != 1 {
		t.Errorf("Nodes = %d, want 1", result.Nodes)
	}
}

func TestBootMinutesErrors(t *testing.T) {
	h := startServer(t)
	tests := []struct {
		name   string
		action string
		fields map[string]any
	}{
		{"zero minutes", ActionSetBootMinutes, map[string]any{"node_id": 1, "minutes": 0}},
		{"missing node", ActionSetBootMinutes, map[string]any{"minutes": 5}},
		{"unknown network", ActionSetDefaultBootMinutes, map[string]any{"network": "dev", "minutes": 5}},
		{"negative minutes", ActionSetAllBootMinutes, map[string]any{"minutes": -1}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := h.call(t, test.action, test.fields, nil)
			var actionErr *ActionError
			if !errors.As(err, &actionErr) {
				t.Fatalf("error = %v, want *ActionError", err)
			}
			if actionErr.Action != test.action {
				t.Errorf("Action = %q", actionErr.Action)
			}
		})
	}
}

// --- subscriptions ---

func TestSubscriptionLifecycle(t *testing.T) {
	h := startServer(t)

	var result SubscriptionResult
	for _, id := range []int{42, 7} {
		if err := h.call(t, ActionSubscribe, map[string]any{"node_id": id, "observer": string(observer)}, &result); err != nil {
			t.Fatalf("subscribe %d: %v", id, err)
		}
		if result.Changed != 1 {
			t.Errorf("subscribe %d changed %d", id, result.Changed)
		}
	}
	if err := h.call(t, ActionSubscribe, map[string]any{"node_id": 42, "observer": string(observer)}, &result); err != nil {
		t.Fatal(err)
	}
	if result.Changed != 0 {
		t.Errorf("repeat subscribe changed %d, want 0", result.Changed)
	}

	var subs []subscription.Subscription
	if err := h.call(t, ActionSubscriptions, map[string]any{"observer": string(observer)}, &subs); err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].NodeID != 7 || subs[1].NodeID != 42 {
		t.Errorf("subscriptions = %+v", subs)
	}

	if err := h.call(t, ActionUnsubscribe, map[string]any{"node_id": 7, "observer": string(observer)}, &result); err != nil {
		t.Fatal(err)
	}
	if result.Changed != 1 {
		t.Errorf("unsubscribe changed %d", result.Changed)
	}
	if err := h.call(t, ActionUnsubscribe, map[string]any{"all": true, "observer": string(observer)}, &result); err != nil {
		t.Fatal(err)
	}
	if result.Changed != 1 {
		t.Errorf("unsubscribe all changed %d, want 1", result.Changed)
	}

	ids, _ := h.store.SubscribedNodes(context.Background(), "main")
	if len(ids) != 0 {
		t.Errorf("nodes still subscribed: %v", ids)
	}
}

func TestSubscribeErrors(t *testing.T) {
	h := startServer(t)
	tests := []struct {
		name   string
		action string
		fields map[string]any
	}{
		{"bad observer", ActionSubscribe, map[string]any{"node_id": 1, "observer": "1001"}},
		{"unknown network", ActionSubscribe, map[string]any{"network": "dev", "node_id": 1, "observer": string(observer)}},
		{"unsubscribe without node", ActionUnsubscribe, map[string]any{"observer": string(observer)}},
		{"list without observer", ActionSubscriptions, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := h.call(t, test.action, test.fields, nil); err == nil {
				t.Error("call succeeded")
			}
		})
	}
}

// --- protocol ---

func TestUnknownAction(t *testing.T) {
	h := startServer(t)
	err := h.call(t, "reboot", nil, nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("error = %v, want *ActionError", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient(filepath.Join(testutil.SocketDir(t), "absent.sock"))
	err := client.Call(context.Background(), ActionStatus, nil, nil)
	if err == nil {
		t.Fatal("Call to a missing socket succeeded")
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		t.Error("transport failure reported as *ActionError")
	}
}

func TestResponseEnvelope(t *testing.T) {
	data, err := codec.Marshal(Response{OK: true})
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := codec.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	if _, present := generic["error"]; present {
		t.Errorf("empty error encoded: %v", generic)
	}
	if generic["ok"] != true {
		t.Errorf("ok = %v", generic["ok"])
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewServer("/unused", nil)
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Handle did not panic")
		}
	}()
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) { return nil, nil })
}

