// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package waketimer tracks, per node, how long a node may take to boot
// after a wake request and when the last wake request was seen.
//
// A Timer belongs to exactly one network. The transition engine is its
// only writer of wake attempts; boot windows can additionally be
// changed at runtime through the control socket, so all methods are
// safe for concurrent use.
package waketimer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/node"
)

// DefaultMaxBootMinutes is the boot window for nodes with no explicit
// setting.
const DefaultMaxBootMinutes = 7

// Timer holds wake state for the nodes of one network.
type Timer struct {
	mu             sync.Mutex
	defaultMinutes int
	nodes          map[node.ID]*node.WakeState
}

// New returns a Timer whose untracked nodes get defaultMinutes. A
// non-positive value selects DefaultMaxBootMinutes.
func New(defaultMinutes int) *Timer {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultMaxBootMinutes
	}
	return &Timer{
		defaultMinutes: defaultMinutes,
		nodes:          make(map[node.ID]*node.WakeState),
	}
}

// Get returns the wake state for id. Untracked nodes report the
// default window and no attempt.
func (t *Timer) Get(id node.ID) node.WakeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.nodes[id]; ok {
		return *state
	}
	return node.WakeState{MaxBootMinutes: t.defaultMinutes}
}

// RecordWakeAttempt stores at as the node's last wake attempt.
func (t *Timer) RecordWakeAttempt(id node.ID, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackLocked(id).LastWakeAttemptAt = at
}

// ClearWakeAttempt forgets the node's last wake attempt. The node's
// boot window is kept.
func (t *Timer) ClearWakeAttempt(id node.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.nodes[id]; ok {
		state.LastWakeAttemptAt = time.Time{}
	}
}

// SetMaxBootMinutes sets the boot window of one node.
func (t *Timer) SetMaxBootMinutes(id node.ID, minutes int) error {
	if err := checkMinutes(minutes); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackLocked(id).MaxBootMinutes = minutes
	return nil
}

// SetDefaultMaxBootMinutes changes the window given to nodes that are
// not yet tracked. Tracked nodes keep their current window.
func (t *Timer) SetDefaultMaxBootMinutes(minutes int) error {
	if err := checkMinutes(minutes); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultMinutes = minutes
	return nil
}

// SetAllMaxBootMinutes sets the window of every tracked node and makes
// it the default for untracked ones.
func (t *Timer) SetAllMaxBootMinutes(minutes int) error {
	if err := checkMinutes(minutes); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultMinutes = minutes
	for _, state := range t.nodes {
		state.MaxBootMinutes = minutes
	}
	return nil
}

// DefaultMaxBootMinutes returns the current default window.
func (t *Timer) DefaultMaxBootMinutes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.defaultMinutes
}

// Entry is one tracked node's wake state.
type Entry struct {
	NodeID node.ID `json:"node_id"`
	node.WakeState
}

// Entries returns all tracked nodes ordered by ID.
func (t *Timer) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]Entry, 0, len(t.nodes))
	for id, state := range t.nodes {
		entries = append(entries, Entry{NodeID: id, WakeState: *state})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeID < entries[j].NodeID })
	return entries
}

// trackLocked returns the node's state, creating it with the default
// window. Caller must hold t.mu.
func (t *Timer) trackLocked(id node.ID) *node.WakeState {
	state, ok := t.nodes[id]
	if !ok {
		state = &node.WakeState{MaxBootMinutes: t.defaultMinutes}
		t.nodes[id] = state
	}
	return state
}

func checkMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("waketimer: boot window must be positive, got %d minutes", minutes)
	}
	return nil
}
