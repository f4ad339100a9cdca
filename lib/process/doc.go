// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the nodewatch
// binaries. Fatal is the one place that writes to stderr directly,
// because configuration and credential errors happen before the
// structured logger exists.
package process
