// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry fetches node records from the grid indexer.
//
// A fetch is all-or-nothing: either every record the indexer returned
// is decoded, or the call fails with a [*FetchError] and the caller
// keeps its previous view of the network.
package telemetry

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/nodewatch/lib/node"
)

// Source fetches current telemetry for a set of nodes.
type Source interface {
	Fetch(ctx context.Context, network string, ids []node.ID) ([]node.Record, error)
}

// FetchError reports that telemetry for a network could not be
// obtained this cycle.
type FetchError struct {
	Network string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("telemetry: fetching %s nodes: %v", e.Network, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
