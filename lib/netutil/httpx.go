// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP response reads and connection
// error classification.
//
// Every collaborator nodewatch talks to over HTTP (the telemetry
// indexer, the Bot API, the homeserver, Shelly plugs) returns small
// JSON documents. ReadResponse and DecodeResponse cap what is read so a
// misbehaving endpoint cannot exhaust memory.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response reads at 16 MB. A full-network
// telemetry query is well under a megabyte.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads at most MaxResponseSize bytes of body.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads body with ReadResponse and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns as much of an error response body as can be read,
// for use in error messages.
func ErrorBody(body io.Reader) string {
	data, _ := ReadResponse(body)
	return string(data)
}
