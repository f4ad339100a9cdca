// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func record(age time.Duration, state, target PowerState) Record {
	return Record{ID: 7, UpdatedAt: now.Add(-age), Power: Power{State: state, Target: target}}
}

// --- Classify ---

func TestClassify(t *testing.T) {
	thresholds := DefaultThresholds()
	tests := []struct {
		name string
		rec  Record
		wake WakeState
		want Status
	}{
		{"fresh up", record(5*time.Minute, PowerUp, PowerUp), WakeState{}, StatusUp},
		{"fresh unknown power", record(5*time.Minute, PowerUnknown, PowerUnknown), WakeState{}, StatusUp},
		{"fresh up target down", record(5*time.Minute, PowerUp, PowerDown), WakeState{}, StatusUp},
		{"exactly offline threshold", record(time.Hour, PowerUp, PowerUp), WakeState{}, StatusDown},
		{"stale unknown power", record(2*time.Hour, PowerUnknown, PowerUnknown), WakeState{}, StatusDown},
		{"fresh down target down", record(5*time.Minute, PowerDown, PowerDown), WakeState{}, StatusStandby},
		{"standby under a day", record(23*time.Hour, PowerDown, PowerDown), WakeState{}, StatusStandby},
		{"exactly standby threshold", record(24*time.Hour, PowerDown, PowerDown), WakeState{}, StatusDown},
		{"waking no attempt recorded", record(30*time.Hour, PowerDown, PowerUp), WakeState{MaxBootMinutes: 7}, StatusWaking},
		{
			"waking inside window",
			record(5*time.Minute, PowerDown, PowerUp),
			WakeState{MaxBootMinutes: 7, LastWakeAttemptAt: now.Add(-6 * time.Minute)},
			StatusWaking,
		},
		{
			"blocked at window edge",
			record(5*time.Minute, PowerDown, PowerUp),
			WakeState{MaxBootMinutes: 7, LastWakeAttemptAt: now.Add(-7 * time.Minute)},
			StatusWakingBlocked,
		},
		{
			"blocked takes precedence over standby",
			record(time.Minute, PowerDown, PowerUp),
			WakeState{MaxBootMinutes: 1, LastWakeAttemptAt: now.Add(-time.Hour)},
			StatusWakingBlocked,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Classify(ClassifyInput{Record: test.rec, Wake: test.wake}, now, thresholds)
			if got != test.want {
				t.Errorf("Classify() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestClassifyWakeWindowThreeMinutes(t *testing.T) {
	attempt := now
	input := ClassifyInput{
		Record: Record{ID: 7, UpdatedAt: attempt, Power: Power{State: PowerDown, Target: PowerUp}},
		Wake:   WakeState{MaxBootMinutes: 3, LastWakeAttemptAt: attempt},
	}
	if got := Classify(input, attempt.Add(2*time.Minute), DefaultThresholds()); got != StatusWaking {
		t.Errorf("at 2 minutes: got %v, want Waking", got)
	}
	if got := Classify(input, attempt.Add(4*time.Minute), DefaultThresholds()); got != StatusWakingBlocked {
		t.Errorf("at 4 minutes: got %v, want WakingBlocked", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	input := ClassifyInput{
		Record: record(90*time.Minute, PowerDown, PowerUp),
		Wake:   WakeState{MaxBootMinutes: 7, LastWakeAttemptAt: now.Add(-3 * time.Minute)},
	}
	first := Classify(input, now, DefaultThresholds())
	for range 100 {
		if got := Classify(input, now, DefaultThresholds()); got != first {
			t.Fatalf("Classify changed result: %v then %v", first, got)
		}
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	thresholds := Thresholds{Offline: 10 * time.Minute, Standby: time.Hour}
	input := ClassifyInput{Record: record(15*time.Minute, PowerUp, PowerUp)}
	if got := Classify(input, now, thresholds); got != StatusDown {
		t.Errorf("15m old with 10m offline threshold: got %v, want Down", got)
	}
	input = ClassifyInput{Record: record(59*time.Minute, PowerDown, PowerDown)}
	if got := Classify(input, now, thresholds); got != StatusStandby {
		t.Errorf("59m old powered down with 1h standby: got %v, want Standby", got)
	}
}

// --- Validate ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"valid", record(time.Minute, PowerUp, PowerUp), false},
		{"valid unknown power", record(time.Minute, PowerUnknown, PowerUnknown), false},
		{"zero id", Record{UpdatedAt: now}, true},
		{"zero timestamp", Record{ID: 3}, true},
		{"out of range state", Record{ID: 3, UpdatedAt: now, Power: Power{State: 9}}, true},
		{"out of range target", Record{ID: 3, UpdatedAt: now, Power: Power{Target: 9}}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(test.rec)
			if (err != nil) != test.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, test.wantErr)
			}
			if err != nil {
				var classification *ClassificationError
				if !errors.As(err, &classification) {
					t.Errorf("error %T is not a *ClassificationError", err)
				}
			}
		})
	}
}

// --- parsing ---

func TestParsePowerState(t *testing.T) {
	tests := []struct {
		input   string
		want    PowerState
		wantErr bool
	}{
		{"Up", PowerUp, false},
		{"down", PowerDown, false},
		{"", PowerUnknown, false},
		{"Unknown", PowerUnknown, false},
		{"sideways", PowerUnknown, true},
	}
	for _, test := range tests {
		got, err := ParsePowerState(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParsePowerState(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ParsePowerState(%q) = %v, want %v", test.input, got, test.want)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID(" 42 "); err != nil || id != 42 {
		t.Errorf("ParseID(\" 42 \") = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "abc", ""} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("ParseID(%q) succeeded, want error", bad)
		}
	}
}

func TestStatusTextRoundTrip(t *testing.T) {
	var status Status
	if err := status.UnmarshalText([]byte("WakingBlocked")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if status != StatusWakingBlocked {
		t.Errorf("got %v, want WakingBlocked", status)
	}
	if _, err := Status(0).MarshalText(); err == nil {
		t.Error("MarshalText of zero Status succeeded, want error")
	}
}
