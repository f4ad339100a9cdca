// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control is the daemon's local management protocol: a Unix
// socket carrying one CBOR request and one CBOR response per
// connection.
//
// A request is a CBOR map with an "action" field plus action-specific
// fields. A response is {ok, error, data}. [Server] routes actions to
// handlers; [Register] installs the nodewatch actions (status, wake
// window changes, and subscription management); [Client] is what
// nodewatch-ctl calls them with.
//
// Access control is the socket file's permissions. The socket is
// created 0600 for the daemon's user.
package control
