// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/nodewatch/lib/alert"
	"github.com/bureau-foundation/nodewatch/lib/clock"
	"github.com/bureau-foundation/nodewatch/lib/metrics"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/powerctl"
	"github.com/bureau-foundation/nodewatch/lib/telemetry"
	"github.com/bureau-foundation/nodewatch/lib/waketimer"
)

// Default I/O bounds.
const (
	DefaultFetchTimeout      = 30 * time.Second
	DefaultPowerCycleTimeout = 15 * time.Second
)

// Entry is the committed observation of one node.
type Entry struct {
	Record     node.Record `json:"record"`
	Status     node.Status `json:"status"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Config configures an Engine.
type Config struct {
	// Network names the network in events and logs. Required.
	Network string
	// Wake is the network's wake timer. Required.
	Wake *waketimer.Timer
	// Thresholds default to node.DefaultThresholds().
	Thresholds node.Thresholds
	// FetchTimeout and PowerCycleTimeout bound the two kinds of I/O
	// the engine performs.
	FetchTimeout      time.Duration
	PowerCycleTimeout time.Duration
	Clock             clock.Clock
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
}

// Engine holds the snapshot of one network.
type Engine struct {
	network           string
	wake              *waketimer.Timer
	thresholds        node.Thresholds
	fetchTimeout      time.Duration
	powerCycleTimeout time.Duration
	clock             clock.Clock
	metrics           *metrics.Metrics
	logger            *slog.Logger

	mu       sync.RWMutex
	snapshot map[node.ID]Entry
}

// New returns an Engine with an empty snapshot.
func New(config Config) (*Engine, error) {
	if config.Network == "" {
		return nil, errors.New("transition: network is required")
	}
	if config.Wake == nil {
		return nil, errors.New("transition: wake timer is required")
	}
	thresholds := config.Thresholds
	if thresholds == (node.Thresholds{}) {
		thresholds = node.DefaultThresholds()
	}
	if thresholds.Offline <= 0 || thresholds.Standby <= 0 {
		return nil, fmt.Errorf("transition: thresholds must be positive, got %+v", thresholds)
	}
	fetchTimeout := config.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	powerCycleTimeout := config.PowerCycleTimeout
	if powerCycleTimeout <= 0 {
		powerCycleTimeout = DefaultPowerCycleTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		network:           config.Network,
		wake:              config.Wake,
		thresholds:        thresholds,
		fetchTimeout:      fetchTimeout,
		powerCycleTimeout: powerCycleTimeout,
		clock:             clk,
		metrics:           config.Metrics,
		logger:            logger.With("network", config.Network),
		snapshot:          make(map[node.ID]Entry),
	}, nil
}

// Network returns the network this engine tracks.
func (e *Engine) Network() string { return e.network }

// Wake returns the engine's wake timer.
func (e *Engine) Wake() *waketimer.Timer { return e.wake }

// CycleResult is the outcome of one RunCycle.
type CycleResult struct {
	CycleID string
	At      time.Time
	// Events in emission order. Events for one node are contiguous.
	Events []alert.Event
	// Classified counts nodes whose observation was committed.
	Classified int
	// NodeErrors holds one error per node that was skipped.
	NodeErrors []error
}

// RunCycle polls ids once. It returns an error only when the fetch
// itself fails, in which case the snapshot is untouched.
func (e *Engine) RunCycle(ctx context.Context, ids []node.ID, source telemetry.Source, power powerctl.Lookup) (CycleResult, error) {
	result := CycleResult{CycleID: uuid.NewString(), At: e.clock.Now()}
	logger := e.logger.With("cycle_id", result.CycleID)

	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	records, err := source.Fetch(fetchCtx, e.network, ids)
	cancel()
	if err != nil {
		var fetchErr *telemetry.FetchError
		if !errors.As(err, &fetchErr) {
			err = &telemetry.FetchError{Network: e.network, Err: err}
		}
		return result, err
	}

	requested := make(map[node.ID]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}
	processed := make(map[node.ID]bool, len(records))

	for _, record := range records {
		if !requested[record.ID] {
			result.NodeErrors = append(result.NodeErrors,
				&node.ClassificationError{NodeID: record.ID, Reason: "record for a node that was not requested"})
			continue
		}
		if processed[record.ID] {
			result.NodeErrors = append(result.NodeErrors,
				&node.ClassificationError{NodeID: record.ID, Reason: "duplicate record in one fetch"})
			continue
		}
		processed[record.ID] = true

		events, err := e.processNodeRecovered(ctx, record, result.At, result.CycleID, power)
		if err != nil {
			result.NodeErrors = append(result.NodeErrors, err)
			logger.Warn("node skipped this cycle", "node_id", record.ID, "error", err)
			continue
		}
		result.Classified++
		result.Events = append(result.Events, events...)
	}

	if missing := len(requested) - len(processed); missing > 0 {
		logger.Debug("indexer returned no record for some nodes", "missing", missing)
	}
	e.metrics.AddNodeErrors(e.network, len(result.NodeErrors))
	e.metrics.SetNodeStatus(e.network, e.StatusCounts())
	return result, nil
}

// processNodeRecovered runs processNode, turning a panic into an error
// for that node alone so the rest of the cycle is still committed.
func (e *Engine) processNodeRecovered(ctx context.Context, record node.Record, now time.Time, cycleID string, power powerctl.Lookup) (events []alert.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("node processing panicked", "node_id", record.ID, "cycle_id", cycleID, "panic", fmt.Sprint(recovered))
			events, err = nil, fmt.Errorf("transition: node %d panicked: %v", record.ID, recovered)
		}
	}()
	return e.processNode(ctx, record, now, cycleID, power)
}

// processNode classifies one record, reacts to its change against the
// snapshot, and commits it.
func (e *Engine) processNode(ctx context.Context, record node.Record, now time.Time, cycleID string, power powerctl.Lookup) ([]alert.Event, error) {
	if err := node.Validate(record); err != nil {
		return nil, err
	}

	e.mu.RLock()
	previous, seen := e.snapshot[record.ID]
	e.mu.RUnlock()

	var events []alert.Event
	newEvent := func(kind alert.Kind) alert.Event {
		return alert.New(e.network, record.ID, kind, cycleID, now)
	}

	// The wake request is recorded before classifying so a fresh
	// request is measured from this cycle, not from a stale attempt.
	if seen && previous.Record.Power.Target == node.PowerDown && record.Power.Target == node.PowerUp {
		e.wake.RecordWakeAttempt(record.ID, now)
		events = append(events, newEvent(alert.KindWakeInitiated))
	}

	current := node.Classify(node.ClassifyInput{
		Record: record,
		Wake:   e.wake.Get(record.ID),
	}, now, e.thresholds)

	if seen {
		for _, event := range e.react(ctx, record.ID, previous.Status, current, newEvent, power) {
			event.Previous = previous.Status
			event.Current = current
			events = append(events, event)
		}
		if previous.Status != current {
			e.logger.Info("node status changed",
				"node_id", record.ID,
				"cycle_id", cycleID,
				"previous", previous.Status.String(),
				"current", current.String(),
			)
		}
	}

	e.mu.Lock()
	e.snapshot[record.ID] = Entry{Record: record, Status: current, ObservedAt: now}
	e.mu.Unlock()
	return events, nil
}

// react applies the status transition table.
func (e *Engine) react(ctx context.Context, id node.ID, previous, current node.Status,
	newEvent func(alert.Kind) alert.Event, power powerctl.Lookup) []alert.Event {

	switch {
	case previous == node.StatusUp && current == node.StatusDown:
		e.wake.ClearWakeAttempt(id)
		return []alert.Event{newEvent(alert.KindWentOffline)}

	case previous == node.StatusWaking && current == node.StatusWakingBlocked:
		return []alert.Event{newEvent(alert.KindWakeStuck), e.powerCycle(ctx, id, newEvent, power)}

	case previous == node.StatusUp && current == node.StatusStandby:
		e.wake.ClearWakeAttempt(id)
		return []alert.Event{newEvent(alert.KindWentToSleep)}

	case previous == node.StatusStandby && current == node.StatusDown:
		e.wake.ClearWakeAttempt(id)
		return []alert.Event{newEvent(alert.KindStandbyTimeout)}

	case previous != node.StatusUp && current == node.StatusUp:
		e.wake.ClearWakeAttempt(id)
		return []alert.Event{newEvent(alert.KindCameOnline)}
	}
	return nil
}

// powerCycle invokes the node's controller once and reports the
// outcome as an event.
func (e *Engine) powerCycle(ctx context.Context, id node.ID, newEvent func(alert.Kind) alert.Event, power powerctl.Lookup) alert.Event {
	var controller powerctl.Controller
	var ok bool
	if power != nil {
		controller, ok = power.Controller(id)
	}
	if !ok {
		e.metrics.CountPowerCycle(e.network, "no_controller")
		e.logger.Warn("node stuck waking with no power controller", "node_id", id)
		return newEvent(alert.KindNoPowerController)
	}

	cycleCtx, cancel := context.WithTimeout(ctx, e.powerCycleTimeout)
	succeeded := controller.PowerCycle(cycleCtx)
	cancel()

	event := newEvent(alert.KindPowerCycleResult)
	event.ControllerAddress = controller.Address()
	event.PowerCycleSucceeded = succeeded
	if succeeded {
		e.metrics.CountPowerCycle(e.network, "success")
		e.logger.Info("power cycled stuck node", "node_id", id, "controller", controller.Address())
	} else {
		e.metrics.CountPowerCycle(e.network, "failure")
		e.logger.Error("power cycle failed", "node_id", id, "phase", "power_cycle", "controller", controller.Address())
	}
	return event
}

// Lookup returns the committed observation of one node.
func (e *Engine) Lookup(id node.ID) (Entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.snapshot[id]
	return entry, ok
}

// NodeView is a snapshot entry joined with the node's wake state.
type NodeView struct {
	NodeID node.ID        `json:"node_id"`
	Entry                 // committed observation
	Wake   node.WakeState `json:"wake"`
}

// Snapshot returns a copy of every committed observation, ordered by
// node ID.
func (e *Engine) Snapshot() []NodeView {
	e.mu.RLock()
	views := make([]NodeView, 0, len(e.snapshot))
	for id, entry := range e.snapshot {
		views = append(views, NodeView{NodeID: id, Entry: entry})
	}
	e.mu.RUnlock()

	for index := range views {
		views[index].Wake = e.wake.Get(views[index].NodeID)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].NodeID < views[j].NodeID })
	return views
}

// StatusCounts returns how many tracked nodes are in each status.
func (e *Engine) StatusCounts() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	counts := make(map[string]int)
	for _, entry := range e.snapshot {
		counts[entry.Status.String()]++
	}
	return counts
}
