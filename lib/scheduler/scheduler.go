// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/alert"
	"github.com/bureau-foundation/nodewatch/lib/clock"
	"github.com/bureau-foundation/nodewatch/lib/metrics"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/powerctl"
	"github.com/bureau-foundation/nodewatch/lib/telemetry"
	"github.com/bureau-foundation/nodewatch/lib/transition"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 60 * time.Second

// State is the activity of one poll loop.
type State int32

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "polling":
		*s = Polling
	default:
		return fmt.Errorf("scheduler: unrecognized state %q", text)
	}
	return nil
}

// Subscriptions is the part of the subscription store a loop reads.
type Subscriptions interface {
	SubscribedNodes(ctx context.Context, network string) ([]node.ID, error)
	alert.ObserverLookup
}

// Dispatcher delivers one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event alert.Event, lookup alert.ObserverLookup) alert.Report
}

// Network is one polled network and its collaborators.
type Network struct {
	Engine *transition.Engine
	Source telemetry.Source
	Power  powerctl.Lookup
}

// Config configures a Scheduler.
type Config struct {
	// Interval defaults to DefaultInterval.
	Interval      time.Duration
	Subscriptions Subscriptions
	Dispatcher    Dispatcher
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Scheduler owns one loop per network.
type Scheduler struct {
	interval time.Duration
	loops    map[string]*loop
}

type loop struct {
	network       Network
	name          string
	interval      time.Duration
	subscriptions Subscriptions
	dispatcher    Dispatcher
	clock         clock.Clock
	metrics       *metrics.Metrics
	logger        *slog.Logger

	state     atomic.Int32
	lastCycle atomic.Pointer[CycleSummary]
}

// CycleSummary describes the most recent completed cycle of a loop.
type CycleSummary struct {
	CycleID    string        `json:"cycle_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Result     string        `json:"result"`
	Nodes      int           `json:"nodes"`
	Events     int           `json:"events"`
	NodeErrors int           `json:"node_errors"`
}

// Cycle results, also used as the metrics label.
const (
	ResultOK         = "ok"
	ResultFetchError = "fetch_error"
	ResultError      = "error"
	ResultEmpty      = "empty"
)

// New validates config and builds a loop for every network.
func New(config Config, networks ...Network) (*Scheduler, error) {
	if config.Subscriptions == nil {
		return nil, errors.New("scheduler: subscriptions are required")
	}
	if config.Dispatcher == nil {
		return nil, errors.New("scheduler: dispatcher is required")
	}
	if len(networks) == 0 {
		return nil, errors.New("scheduler: at least one network is required")
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler{interval: interval, loops: make(map[string]*loop, len(networks))}
	for _, network := range networks {
		if network.Engine == nil || network.Source == nil || network.Power == nil {
			return nil, errors.New("scheduler: network needs an engine, a source, and a power lookup")
		}
		name := network.Engine.Network()
		if _, exists := s.loops[name]; exists {
			return nil, fmt.Errorf("scheduler: network %q configured twice", name)
		}
		s.loops[name] = &loop{
			network:       network,
			name:          name,
			interval:      interval,
			subscriptions: config.Subscriptions,
			dispatcher:    config.Dispatcher,
			clock:         clk,
			metrics:       config.Metrics,
			logger:        logger.With("network", name),
		}
	}
	return s, nil
}

// Run polls every network until ctx is cancelled, then waits for the
// in-flight cycles to return.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, l := range s.loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.run(ctx)
		}()
	}
	wg.Wait()
}

// Networks lists the scheduled networks, sorted.
func (s *Scheduler) Networks() []string {
	names := make([]string, 0, len(s.loops))
	for name := range s.loops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Engine returns the engine of a network.
func (s *Scheduler) Engine(network string) (*transition.Engine, bool) {
	l, ok := s.loops[network]
	if !ok {
		return nil, false
	}
	return l.network.Engine, true
}

// State reports whether a network is mid-cycle.
func (s *Scheduler) State(network string) (State, bool) {
	l, ok := s.loops[network]
	if !ok {
		return Idle, false
	}
	return State(l.state.Load()), true
}

// LastCycle returns the summary of the most recent completed cycle of
// a network, or nil before the first one completes.
func (s *Scheduler) LastCycle(network string) *CycleSummary {
	l, ok := s.loops[network]
	if !ok {
		return nil
	}
	return l.lastCycle.Load()
}

// Interval returns the poll period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

func (l *loop) run(ctx context.Context) {
	l.logger.Info("poll loop started", "interval", l.interval)
	defer l.logger.Info("poll loop stopped")

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	l.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		l.cycle(ctx)
	}
}

// cycle runs one poll. It never panics out of the loop.
func (l *loop) cycle(ctx context.Context) {
	l.state.Store(int32(Polling))
	defer l.state.Store(int32(Idle))

	summary := CycleSummary{StartedAt: l.clock.Now(), Result: ResultError}
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("poll cycle panicked", "phase", "cycle", "panic", fmt.Sprint(recovered))
			summary.Result = ResultError
		}
		summary.Duration = l.clock.Now().Sub(summary.StartedAt)
		l.metrics.ObserveCycle(l.name, summary.Result, summary.Duration)
		l.lastCycle.Store(&summary)
	}()

	ids, err := l.subscriptions.SubscribedNodes(ctx, l.name)
	if err != nil {
		l.logger.Error("listing subscribed nodes failed", "phase", "subscriptions", "error", err)
		return
	}
	summary.Nodes = len(ids)
	if len(ids) == 0 {
		l.logger.Debug("no subscribed nodes")
		summary.Result = ResultEmpty
		return
	}

	result, err := l.network.Engine.RunCycle(ctx, ids, l.network.Source, l.network.Power)
	summary.CycleID = result.CycleID
	if err != nil {
		var fetchErr *telemetry.FetchError
		if errors.As(err, &fetchErr) {
			summary.Result = ResultFetchError
		}
		if ctx.Err() != nil {
			l.logger.Debug("poll cycle interrupted by shutdown", "error", err)
			return
		}
		l.logger.Warn("poll cycle failed", "phase", "fetch", "cycle_id", result.CycleID, "error", err)
		return
	}
	summary.Result = ResultOK
	summary.Events = len(result.Events)
	summary.NodeErrors = len(result.NodeErrors)

	for _, event := range result.Events {
		l.dispatch(ctx, event)
	}
	l.logger.Debug("poll cycle complete",
		"cycle_id", result.CycleID,
		"nodes", len(ids),
		"classified", result.Classified,
		"events", len(result.Events),
		"node_errors", len(result.NodeErrors),
	)
}

// dispatch delivers one event. A panicking sender loses only that
// event.
func (l *loop) dispatch(ctx context.Context, event alert.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("alert dispatch panicked",
				"phase", "dispatch",
				"node_id", event.NodeID,
				"kind", event.Kind.String(),
				"cycle_id", event.CycleID,
				"panic", fmt.Sprint(recovered),
			)
		}
	}()
	l.dispatcher.Dispatch(ctx, event, l.subscriptions)
}

// NetworkStatus is the operator view of one network.
type NetworkStatus struct {
	Network            string                `json:"network"`
	State              State                 `json:"state"`
	Interval           time.Duration         `json:"interval"`
	DefaultBootMinutes int                   `json:"default_boot_minutes"`
	LastCycle          *CycleSummary         `json:"last_cycle,omitempty"`
	Nodes              []transition.NodeView `json:"nodes"`
}

// Status returns the current view of a network, including every node
// its engine tracks.
func (s *Scheduler) Status(network string) (NetworkStatus, bool) {
	l, ok := s.loops[network]
	if !ok {
		return NetworkStatus{}, false
	}
	return NetworkStatus{
		Network:            network,
		State:              State(l.state.Load()),
		Interval:           s.interval,
		DefaultBootMinutes: l.network.Engine.Wake().DefaultMaxBootMinutes(),
		LastCycle:          l.lastCycle.Load(),
		Nodes:              l.network.Engine.Snapshot(),
	}, true
}
