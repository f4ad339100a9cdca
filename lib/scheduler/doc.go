// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler drives the poll loops. Each network gets one
// goroutine that lists subscribed nodes, runs a transition cycle, and
// dispatches the resulting alerts in order, on a fixed interval.
//
// A loop is strictly sequential: a cycle that outlasts the interval
// makes the ticker drop ticks rather than start a second cycle for the
// same network. No cycle failure stops a loop; failures are logged,
// counted, and retried on the next tick.
package scheduler
