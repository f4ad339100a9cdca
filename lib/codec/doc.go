// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the one CBOR configuration nodewatch uses, for
// the control socket between the daemon and nodewatch-ctl.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct tags
//
// A `cbor` tag marks a type that only ever crosses the control socket.
// A `json` tag marks a type that is also served as JSON (admin API,
// CLI --json output); fxamacker/cbor falls back to `json` tags, so one
// tag governs both. Never put both tags on one field.
package codec
