// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the nodewatch binaries.
//
// The variables are injected at link time:
//
//	go build -ldflags "-X github.com/bureau-foundation/nodewatch/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Unset variables keep their development defaults.
package version
