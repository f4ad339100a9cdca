// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the nodewatch daemon configuration.
//
// Configuration is loaded from a single YAML file named either by the
// NODEWATCH_CONFIG environment variable (via [Load]) or by a --config
// flag (via [LoadFile]). There is no discovery and no search path.
// Values absent from the file keep the [Default] values.
//
// Path fields support ${VAR} and ${VAR:-default} expansion after
// loading. No other environment variable overrides a config value;
// secrets are the credentials loader's business, not this package's.
//
// This package depends on no other nodewatch packages.
package config
