// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/alert"
	"github.com/bureau-foundation/nodewatch/lib/control"
	"github.com/bureau-foundation/nodewatch/lib/credential"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/powerctl"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
	"github.com/bureau-foundation/nodewatch/lib/subscription"
	"github.com/bureau-foundation/nodewatch/lib/telemetry"
	"github.com/bureau-foundation/nodewatch/lib/testutil"
	"github.com/bureau-foundation/nodewatch/lib/transition"
	"github.com/bureau-foundation/nodewatch/lib/waketimer"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, alert.Event, alert.ObserverLookup) alert.Report {
	return alert.Report{}
}

type daemonHarness struct {
	socket    string
	scheduler *scheduler.Scheduler
	store     *subscription.MemoryStore
}

// startDaemon serves the control actions of a scheduler whose loops
// never run.
func startDaemon(t *testing.T) *daemonHarness {
	t.Helper()
	var networks []scheduler.Network
	for _, name := range []string{"main", "test"} {
		engine, err := transition.New(transition.Config{Network: name, Wake: waketimer.New(0)})
		if err != nil {
			t.Fatal(err)
		}
		networks = append(networks, scheduler.Network{
			Engine: engine,
			Source: telemetry.NewGraphQLSource(nil, nil, nil),
			Power:  powerctl.NewRegistry(nil, nil).Network(name),
		})
	}
	store := subscription.NewMemoryStore()
	sched, err := scheduler.New(scheduler.Config{Subscriptions: store, Dispatcher: nopDispatcher{}}, networks...)
	if err != nil {
		t.Fatal(err)
	}

	socket := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := control.NewServer(socket, nil)
	control.Register(server, sched, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "control server stopping")
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "control server ready")

	return &daemonHarness{socket: socket, scheduler: sched, store: store}
}

func newTestApp(socket string) (*app, *bytes.Buffer) {
	var stdout bytes.Buffer
	return &app{
		stdout: &stdout,
		stderr: &bytes.Buffer{},
		getenv: func(name string) string {
			if name == EnvSocket {
				return socket
			}
			return ""
		},
	}, &stdout
}

// --- socket commands ---

func TestSubscribeListUnsubscribe(t *testing.T) {
	h := startDaemon(t)
	a, stdout := newTestApp(h.socket)

	if err := a.root().execute([]string{"subscribe", "telegram:1001", "7"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !strings.Contains(stdout.String(), "telegram:1001 subscribed to main node 7") {
		t.Errorf("subscribe output = %q", stdout.String())
	}

	stdout.Reset()
	if err := a.root().execute([]string{"subscribe", "-n", "test", "telegram:1001", "9"}); err != nil {
		t.Fatalf("subscribe on test: %v", err)
	}

	stdout.Reset()
	if err := a.root().execute([]string{"subscriptions", "--json", "telegram:1001"}); err != nil {
		t.Fatalf("subscriptions: %v", err)
	}
	var subs []subscription.Subscription
	if err := json.Unmarshal(stdout.Bytes(), &subs); err != nil {
		t.Fatalf("decoding %q: %v", stdout.String(), err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscriptions, want 2: %+v", len(subs), subs)
	}

	stdout.Reset()
	if err := a.root().execute([]string{"unsubscribe", "--all", "telegram:1001"}); err != nil {
		t.Fatalf("unsubscribe --all: %v", err)
	}
	if !strings.Contains(stdout.String(), "removed 1 subscription(s)") {
		t.Errorf("unsubscribe output = %q", stdout.String())
	}
	remaining, err := h.store.Subscriptions(context.Background(), "telegram:1001")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].Network != "test" {
		t.Errorf("remaining = %+v, want only the test subscription", remaining)
	}
}

func TestUnsubscribeNeedsNodeOrAll(t *testing.T) {
	a, _ := newTestApp("/nonexistent.sock")
	for _, args := range [][]string{
		{"unsubscribe", "telegram:1"},
		{"unsubscribe", "--all", "telegram:1", "7"},
	} {
		if err := a.root().execute(args); err == nil || !strings.Contains(err.Error(), "usage") {
			t.Errorf("%v: error = %v, want usage", args, err)
		}
	}
}

func TestBootMinutesCommands(t *testing.T) {
	h := startDaemon(t)
	a, stdout := newTestApp(h.socket)

	if err := a.root().execute([]string{"boot-minutes", "42", "15"}); err != nil {
		t.Fatalf("boot-minutes: %v", err)
	}
	engine, _ := h.scheduler.Engine("main")
	if got := engine.Wake().Get(42).MaxBootMinutes; got != 15 {
		t.Errorf("node 42 = %d minutes, want 15", got)
	}

	if err := a.root().execute([]string{"default-boot-minutes", "-n", "test", "9"}); err != nil {
		t.Fatalf("default-boot-minutes: %v", err)
	}
	testEngine, _ := h.scheduler.Engine("test")
	if got := testEngine.Wake().DefaultMaxBootMinutes(); got != 9 {
		t.Errorf("test default = %d, want 9", got)
	}

	stdout.Reset()
	if err := a.root().execute([]string{"all-boot-minutes", "--json", "11"}); err != nil {
		t.Fatalf("all-boot-minutes: %v", err)
	}
	var result control.BootMinutesResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Minutes != 11 || result.Nodes != 1 {
		t.Errorf("result = %+v, want 11 minutes on 1 node", result)
	}
	if got := engine.Wake().Get(42).MaxBootMinutes; got != 11 {
		t.Errorf("node 42 = %d minutes after all-boot-minutes, want 11", got)
	}

	if err := a.root().execute([]string{"boot-minutes", "42", "0"}); err == nil {
		t.Error("zero minutes accepted")
	}
}

func TestStatusJSON(t *testing.T) {
	h := startDaemon(t)
	a, stdout := newTestApp(h.socket)

	if err := a.root().execute([]string{"status", "--json"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	var statuses []scheduler.NetworkStatus
	if err := json.Unmarshal(stdout.Bytes(), &statuses); err != nil {
		t.Fatalf("decoding %q: %v", stdout.String(), err)
	}
	if len(statuses) != 2 || statuses[0].Network != "main" || statuses[1].Network != "test" {
		t.Errorf("statuses = %+v", statuses)
	}
	if statuses[0].State != scheduler.Idle {
		t.Errorf("state = %v, want idle", statuses[0].State)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	a, _ := newTestApp(filepath.Join(t.TempDir(), "missing.sock"))
	err := a.root().execute([]string{"status"})
	if err == nil || !strings.Contains(err.Error(), "missing.sock") {
		t.Fatalf("error = %v, want one naming the socket", err)
	}
}

// --- rendering ---

func TestRenderStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	statuses := []scheduler.NetworkStatus{{
		Network:            "main",
		State:              scheduler.Polling,
		Interval:           time.Minute,
		DefaultBootMinutes: 7,
		LastCycle: &scheduler.CycleSummary{
			StartedAt: now.Add(-30 * time.Second),
			Duration:  1200 * time.Millisecond,
			Result:    scheduler.ResultOK,
			Nodes:     1,
		},
		Nodes: []transition.NodeView{{
			NodeID: 7,
			Entry: transition.Entry{
				Record: node.Record{
					ID:        7,
					UpdatedAt: now.Add(-5 * time.Minute),
					Power:     node.Power{State: node.PowerDown, Target: node.PowerUp},
				},
				Status: node.StatusWaking,
			},
			Wake: node.WakeState{MaxBootMinutes: 7, LastWakeAttemptAt: now.Add(-2 * time.Minute)},
		}},
	}, {
		Network:  "test",
		Interval: time.Minute,
	}}

	var out bytes.Buffer
	renderStatus(&out, statuses, now, false)
	text := out.String()
	for _, want := range []string{
		"main  polling  every 1m0s",
		"last cycle 30s ago: ok, 1 nodes",
		"Waking",
		"Down/Up",
		"5m ago",
		"2m ago",
		"no cycle has completed",
		"no nodes tracked",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Error("unstyled output contains escape sequences")
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{-time.Second, "in the future"},
		{42 * time.Second, "42s ago"},
		{90 * time.Minute, "1h ago"},
		{72 * time.Hour, "3d ago"},
	}
	for _, test := range tests {
		if got := formatAge(test.age); got != test.want {
			t.Errorf("formatAge(%v) = %q, want %q", test.age, got, test.want)
		}
	}
}

// --- credentials ---

func TestKeygenAndSeal(t *testing.T) {
	directory := t.TempDir()
	identityFile := filepath.Join(directory, "identity")
	a, stdout := newTestApp("")

	if err := a.root().execute([]string{"keygen", "--identity-file", identityFile}); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	publicKey := strings.TrimSpace(stdout.String())
	if !strings.HasPrefix(publicKey, "age1") {
		t.Fatalf("public key = %q", publicKey)
	}
	info, err := os.Stat(identityFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("identity mode = %v, want 0600", info.Mode().Perm())
	}

	envFile := filepath.Join(directory, "secrets.env")
	if err := os.WriteFile(envFile, []byte("TELEGRAM_BOT_TOKEN=123:abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	sealedFile := filepath.Join(directory, "credentials.age")
	stdout.Reset()
	if err := a.root().execute([]string{
		"seal", "--recipient", publicKey, "--env-file", envFile,
		"--output", sealedFile, "MATRIX_ACCESS_TOKEN=syt_xyz",
	}); err != nil {
		t.Fatalf("seal: %v", err)
	}

	bundle, err := credential.Load(credential.Source{SealedFile: sealedFile, IdentityFile: identityFile})
	if err != nil {
		t.Fatalf("loading sealed credentials: %v", err)
	}
	defer bundle.Close()
	if got := bundle.Get(credential.TelegramBotToken).String(); got != "123:abc" {
		t.Errorf("telegram token = %q", got)
	}
	if got := bundle.Get(credential.MatrixAccessToken).String(); got != "syt_xyz" {
		t.Errorf("matrix token = %q", got)
	}

	if err := a.root().execute([]string{"keygen", "--identity-file", identityFile}); err == nil {
		t.Error("keygen overwrote an existing identity")
	}
}

func TestSealRejectsMalformedArgument(t *testing.T) {
	a, _ := newTestApp("")
	err := a.root().execute([]string{"seal", "--recipient", "age1x", "NOVALUE"})
	if err == nil || !strings.Contains(err.Error(), "NAME=VALUE") {
		t.Fatalf("error = %v", err)
	}
}

// --- dispatch ---

func TestUnknownCommandSuggestion(t *testing.T) {
	a, _ := newTestApp("")
	err := a.root().execute([]string{"staus"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "status"`) {
		t.Fatalf("error = %v", err)
	}
}
