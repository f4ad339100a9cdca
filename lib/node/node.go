// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies a node within one network.
type ID uint32

// ParseID parses a decimal node ID. Zero is rejected: the indexer
// numbers nodes from 1.
func ParseID(s string) (ID, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	if value == 0 {
		return 0, fmt.Errorf("invalid node id %q: must be positive", s)
	}
	return ID(value), nil
}

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// PowerState is the reported or requested power state of a node.
// The zero value is PowerUnknown, which is also what a record with no
// power telemetry at all carries.
type PowerState uint8

const (
	PowerUnknown PowerState = iota
	PowerUp
	PowerDown
)

// PowerInvalid marks power text the telemetry decoder could not parse.
// Validate rejects records carrying it, so one garbled node does not
// fail the fetch for the whole network.
const PowerInvalid PowerState = 0xff

// ParsePowerState accepts the indexer's spellings ("Up", "Down") in any
// case. An empty string is PowerUnknown.
func ParsePowerState(s string) (PowerState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PowerUnknown, nil
	case "unknown":
		return PowerUnknown, nil
	case "up":
		return PowerUp, nil
	case "down":
		return PowerDown, nil
	}
	return PowerUnknown, fmt.Errorf("unrecognized power state %q", s)
}

func (p PowerState) String() string {
	switch p {
	case PowerUnknown:
		return "Unknown"
	case PowerUp:
		return "Up"
	case PowerDown:
		return "Down"
	case PowerInvalid:
		return "Invalid"
	}
	return "PowerState(" + strconv.Itoa(int(p)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (p PowerState) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PowerState) UnmarshalText(text []byte) error {
	parsed, err := ParsePowerState(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Power holds the node's actual power state and the state the farmer
// asked for.
type Power struct {
	State  PowerState `json:"state"`
	Target PowerState `json:"target"`
}

// Record is one poll's worth of telemetry for a node. Records are
// produced fresh each cycle and never mutated afterwards.
type Record struct {
	ID        ID        `json:"node_id"`
	UpdatedAt time.Time `json:"updated_at"`
	Power     Power     `json:"power"`
}

// Age returns how old the record's telemetry is at now.
func (r Record) Age(now time.Time) time.Duration { return now.Sub(r.UpdatedAt) }

// Validate reports why a record cannot be classified, or nil.
func Validate(r Record) error {
	switch {
	case r.ID == 0:
		return &ClassificationError{NodeID: r.ID, Reason: "missing node id"}
	case r.UpdatedAt.IsZero():
		return &ClassificationError{NodeID: r.ID, Reason: "missing telemetry timestamp"}
	case r.Power.State > PowerDown:
		return &ClassificationError{NodeID: r.ID, Reason: "invalid power state " + r.Power.State.String()}
	case r.Power.Target > PowerDown:
		return &ClassificationError{NodeID: r.ID, Reason: "invalid power target " + r.Power.Target.String()}
	}
	return nil
}

// ClassificationError reports a record that could not be classified.
// The node is skipped for the cycle; other nodes are unaffected.
type ClassificationError struct {
	NodeID ID
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("node %d: cannot classify: %s", e.NodeID, e.Reason)
}
