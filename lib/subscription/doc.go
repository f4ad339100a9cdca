// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subscription records which observers follow which nodes.
//
// A subscription is the triple (network, node id, observer). The poll
// scheduler reads SubscribedNodes to decide what to fetch, and the alert
// dispatcher reads Observers to decide who hears about a transition.
// The control socket manages subscriptions through the write methods.
//
// [SQLiteStore] persists subscriptions across restarts; [MemoryStore]
// holds them in process for tests and for running without a state
// file.
package subscription
