// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transition turns successive telemetry polls of one network
// into alert events.
//
// An [Engine] keeps the last committed observation of every node it
// has classified (the snapshot) together with the network's wake
// timer. Each [Engine.RunCycle] fetches fresh records, classifies
// them, compares each with its snapshot entry, reacts to the change,
// and commits the new observation:
//
//	target Down -> Up          WakeInitiated, wake attempt recorded
//	Up -> Down                 WentOffline
//	Waking -> WakingBlocked    WakeStuck, then power cycle outcome
//	Up -> Standby              WentToSleep
//	Standby -> Down            StandbyTimeout
//	anything else -> Up        CameOnline
//
// The power target edge is checked independently of the status change,
// so WakeInitiated can accompany a status alert in the same cycle; it
// is always emitted first. A node seen for the first time seeds the
// snapshot without producing any event.
//
// A failed fetch aborts the cycle before anything is touched. A bad
// record for one node is reported in [CycleResult.NodeErrors] and
// leaves that node's snapshot entry unchanged; other nodes proceed.
//
// An Engine is driven by one goroutine at a time. Snapshot may be read
// concurrently, for status queries.
package transition
