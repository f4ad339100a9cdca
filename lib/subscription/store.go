// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/messaging"
)

// Subscription is one observer following one node.
type Subscription struct {
	Network  string               `json:"network"`
	NodeID   node.ID              `json:"node_id"`
	Observer messaging.ObserverID `json:"observer"`
}

// Store is the subscription backend. Implementations are safe for
// concurrent use.
type Store interface {
	// SubscribedNodes returns the distinct node ids with at least one
	// observer in network, in ascending order.
	SubscribedNodes(ctx context.Context, network string) ([]node.ID, error)

	// Observers returns the observers of one node, sorted.
	Observers(ctx context.Context, network string, id node.ID) ([]messaging.ObserverID, error)

	// Subscribe adds a subscription. It reports false if it already
	// existed.
	Subscribe(ctx context.Context, sub Subscription) (bool, error)

	// Unsubscribe removes a subscription. It reports false if there was
	// none.
	Unsubscribe(ctx context.Context, sub Subscription) (bool, error)

	// UnsubscribeAll removes every subscription of observer in network
	// and returns how many were removed.
	UnsubscribeAll(ctx context.Context, network string, observer messaging.ObserverID) (int, error)

	// Subscriptions lists everything observer follows across networks,
	// ordered by network then node id.
	Subscriptions(ctx context.Context, observer messaging.ObserverID) ([]Subscription, error)
}

// Validate checks the fields a stored subscription needs.
func (s Subscription) Validate() error {
	if s.Network == "" {
		return fmt.Errorf("subscription: network is required")
	}
	if s.NodeID == 0 {
		return fmt.Errorf("subscription: node id is required")
	}
	if _, err := messaging.ParseObserverID(string(s.Observer)); err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
