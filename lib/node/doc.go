// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package node defines the telemetry record of a monitored node and the
// classifier that turns one record into an operational [Status].
//
// Classification is a pure function of the record, the node's wake
// window, the current time, and the staleness thresholds. It holds no
// state: the transition engine builds a [ClassifyInput] for each node
// every cycle and compares the result with the previous cycle's status.
//
// The rules are evaluated in order and the first match wins:
//
//  1. telemetry younger than the offline threshold and power state not
//     Down: [StatusUp]
//  2. power state Down, target Up, still inside the wake window:
//     [StatusWaking]
//  3. power state Down, target Up: [StatusWakingBlocked]
//  4. power state Down, telemetry younger than the standby threshold:
//     [StatusStandby]
//  5. otherwise: [StatusDown]
//
// Both comparisons against thresholds are strict, so a node whose last
// report is exactly one offline threshold old is no longer Up.
package node
