// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package alert renders node transition events and delivers them to
// the observers subscribed to the node.
//
// Events are produced by the transition engine. The [Dispatcher] looks
// up the node's observers, renders the event once, and sends it to each
// observer independently: one observer failing never affects another,
// and no delivery error is returned to the caller.
package alert

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/node"
)

// Kind identifies what happened to a node.
type Kind uint8

const (
	KindWakeInitiated Kind = iota + 1
	KindWentOffline
	KindWakeStuck
	KindPowerCycleResult
	KindNoPowerController
	KindWentToSleep
	KindStandbyTimeout
	KindCameOnline
)

var kindNames = map[Kind]string{
	KindWakeInitiated:     "WakeInitiated",
	KindWentOffline:       "WentOffline",
	KindWakeStuck:         "WakeStuck",
	KindPowerCycleResult:  "PowerCycleResult",
	KindNoPowerController: "NoPowerController",
	KindWentToSleep:       "WentToSleep",
	KindStandbyTimeout:    "StandbyTimeout",
	KindCameOnline:        "CameOnline",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("invalid alert kind %d", k)
	}
	return []byte(k.String()), nil
}

// Severity orders alerts for filtering.
type Severity uint8

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
)

// ParseSeverity accepts "info" and "warning" (or "warn").
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	}
	return 0, fmt.Errorf("unrecognized severity %q (want info or warning)", s)
}

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	}
	return "Severity(" + strconv.Itoa(int(s)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SeverityOf returns the fixed severity of a kind. Informational kinds
// describe expected lifecycle steps; everything else needs attention.
func SeverityOf(kind Kind) Severity {
	switch kind {
	case KindWakeInitiated, KindWentToSleep, KindCameOnline:
		return SeverityInfo
	}
	return SeverityWarning
}

// Event is one alert about one node.
type Event struct {
	Network  string   `json:"network"`
	NodeID   node.ID  `json:"node_id"`
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`

	// Previous and Current are the statuses whose change produced the
	// event. Zero for WakeInitiated, which is driven by the power
	// target rather than the status.
	Previous node.Status `json:"previous,omitempty"`
	Current  node.Status `json:"current,omitempty"`

	// ControllerAddress is set on PowerCycleResult events.
	ControllerAddress string `json:"controller_address,omitempty"`
	// PowerCycleSucceeded is meaningful only on PowerCycleResult events.
	PowerCycleSucceeded bool `json:"power_cycle_succeeded,omitempty"`

	CycleID string    `json:"cycle_id"`
	At      time.Time `json:"at"`
}

// New builds an event with the kind's severity.
func New(network string, id node.ID, kind Kind, cycleID string, at time.Time) Event {
	return Event{
		Network:  network,
		NodeID:   id,
		Kind:     kind,
		Severity: SeverityOf(kind),
		CycleID:  cycleID,
		At:       at,
	}
}

// Render returns the observer-facing text for the event.
func Render(event Event) string {
	id := event.NodeID
	switch event.Kind {
	case KindWakeInitiated:
		return fmt.Sprintf("Node %d wake up initiated ☕", id)
	case KindWentOffline:
		return fmt.Sprintf("Node %d has gone offline ⚠️", id)
	case KindWakeStuck:
		return fmt.Sprintf("Node %d wake up takes longer than expected ⚠️", id)
	case KindPowerCycleResult:
		if event.PowerCycleSucceeded {
			return fmt.Sprintf("Executed power cycle for node %d (%s) 🔌", id, event.ControllerAddress)
		}
		return fmt.Sprintf("Execute power cycle for node %d (%s) failed! ❗", id, event.ControllerAddress)
	case KindNoPowerController:
		return fmt.Sprintf("No power controller set for node %d. Node will not be power cycled ❗", id)
	case KindWentToSleep:
		return fmt.Sprintf("Node %d has gone to sleep 💤", id)
	case KindStandbyTimeout:
		return fmt.Sprintf("Node %d did not wake up within 24 hours ⚠️", id)
	case KindCameOnline:
		return fmt.Sprintf("Node %d has come online 💡", id)
	}
	return fmt.Sprintf("Node %d: %s", id, event.Kind)
}
