// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Node classification is entirely a function of "now" minus a
// telemetry timestamp, and the poll loop is entirely a function of a
// ticker, so both take a Clock instead of calling the time package.
// Tests drive them with a FakeClock:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go scheduler.Run(ctx)
//	c.WaitForTimers(1)       // the loop has registered its ticker
//	c.Advance(time.Minute)   // deliver one tick
package clock
