// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package powerctl power-cycles nodes through smart plugs.
//
// [Controller] is the capability the transition engine uses: cut power
// briefly and report whether the device accepted the command. It never
// returns an error; transport failures are logged and reported as
// false. [Shelly] implements it for Shelly plugs of both API
// generations.
//
// [Registry] maps nodes to controllers per network. It is loaded from
// a JSONC file at startup and can be changed at runtime through the
// control socket.
package powerctl
