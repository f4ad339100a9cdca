// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package adminapi serves the read-only operator HTTP surface: a
// liveness probe, Prometheus metrics, and JSON views of every polled
// network and the nodes its engine tracks.
//
// Routes:
//
//	GET /healthz
//	GET /metrics
//	GET /v1/networks
//	GET /v1/networks/{network}/nodes
//	GET /v1/networks/{network}/nodes/{id}
//
// Nothing here mutates state; changes go through the control socket.
package adminapi
