// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the inferred operational state of a node.
type Status uint8

const (
	// StatusUp: fresh telemetry and not powered down.
	StatusUp Status = iota + 1

	// StatusWaking: powered down, asked to come up, and still inside
	// its boot window.
	StatusWaking

	// StatusWakingBlocked: asked to come up but the boot window has
	// elapsed.
	StatusWakingBlocked

	// StatusStandby: deliberately powered down with recent telemetry.
	StatusStandby

	// StatusDown: everything else.
	StatusDown
)

var statusNames = map[Status]string{
	StatusUp:            "Up",
	StatusWaking:        "Waking",
	StatusWakingBlocked: "WakingBlocked",
	StatusStandby:       "Standby",
	StatusDown:          "Down",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid status %d", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unrecognized status %q", text)
}

// Thresholds are the telemetry ages at which a node stops counting as
// Up (Offline) and at which a powered-down node stops counting as
// Standby.
type Thresholds struct {
	Offline time.Duration
	Standby time.Duration
}

// DefaultThresholds returns one hour and twenty-four hours.
func DefaultThresholds() Thresholds {
	return Thresholds{Offline: time.Hour, Standby: 24 * time.Hour}
}

// WakeState is the wake-timing metadata the classifier needs.
type WakeState struct {
	// MaxBootMinutes is how long a node may take to come up after a
	// wake request before it counts as blocked.
	MaxBootMinutes int `json:"max_boot_minutes"`

	// LastWakeAttemptAt is when the last Down->Up target edge was seen.
	// Zero when no attempt is on record.
	LastWakeAttemptAt time.Time `json:"last_wake_attempt_at,omitzero"`
}

// InWindow reports whether now is inside the boot window. With no
// recorded attempt the node is always considered inside it.
func (w WakeState) InWindow(now time.Time) bool {
	if w.LastWakeAttemptAt.IsZero() {
		return true
	}
	return now.Sub(w.LastWakeAttemptAt) < time.Duration(w.MaxBootMinutes)*time.Minute
}

// ClassifyInput is everything Classify reads for one node.
type ClassifyInput struct {
	Record Record
	Wake   WakeState
}

// Classify infers the node's status. It has no side effects.
func Classify(input ClassifyInput, now time.Time, thresholds Thresholds) Status {
	age := input.Record.Age(now)
	power := input.Record.Power

	if age < thresholds.Offline && power.State != PowerDown {
		return StatusUp
	}
	if power.State == PowerDown && power.Target == PowerUp {
		if input.Wake.InWindow(now) {
			return StatusWaking
		}
		return StatusWakingBlocked
	}
	if power.State == PowerDown && age < thresholds.Standby {
		return StatusStandby
	}
	return StatusDown
}
