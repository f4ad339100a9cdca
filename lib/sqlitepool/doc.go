// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a zombiezen SQLite connection pool with the
// pragmas nodewatch uses for its state database: WAL journaling, a busy
// timeout so the control socket and the poll loops can share the file,
// and foreign keys on.
//
// Schema setup belongs to the caller, through Config.OnConnect, which
// runs once per connection.
package sqlitepool
