// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/nodewatch/lib/codec"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
	"github.com/bureau-foundation/nodewatch/lib/subscription"
	"github.com/bureau-foundation/nodewatch/lib/transition"
	"github.com/bureau-foundation/nodewatch/messaging"
)

// Action names.
const (
	ActionStatus                = "status"
	ActionSetBootMinutes        = "set-boot-minutes"
	ActionSetDefaultBootMinutes = "set-default-boot-minutes"
	ActionSetAllBootMinutes     = "set-all-boot-minutes"
	ActionSubscribe             = "subscribe"
	ActionUnsubscribe           = "unsubscribe"
	ActionSubscriptions         = "subscriptions"
)

// DefaultNetwork is assumed when a request names none.
const DefaultNetwork = "main"

// Monitor is the scheduler as the control actions see it.
type Monitor interface {
	Networks() []string
	Status(network string) (scheduler.NetworkStatus, bool)
	Engine(network string) (*transition.Engine, bool)
}

// Request carries the fields of every action. Each action reads only
// the ones it needs.
type Request struct {
	Network  string               `cbor:"network,omitempty"`
	NodeID   node.ID              `cbor:"node_id,omitempty"`
	Minutes  int                  `cbor:"minutes,omitempty"`
	Observer messaging.ObserverID `cbor:"observer,omitempty"`
	// All makes unsubscribe drop every subscription of the observer
	// in the network.
	All bool `cbor:"all,omitempty"`
}

// BootMinutesResult reports a wake window change.
type BootMinutesResult struct {
	Network string  `json:"network"`
	NodeID  node.ID `json:"node_id,omitempty"`
	Minutes int     `json:"minutes"`
	// Nodes is the number of tracked nodes updated by
	// set-all-boot-minutes.
	Nodes int `json:"nodes,omitempty"`
}

// SubscriptionResult reports a subscribe or unsubscribe.
type SubscriptionResult struct {
	Network  string               `json:"network"`
	NodeID   node.ID              `json:"node_id,omitempty"`
	Observer messaging.ObserverID `json:"observer"`
	// Changed counts subscriptions added or removed; zero means the
	// request was already satisfied.
	Changed int `json:"changed"`
}

// Register installs every nodewatch action on server.
func Register(server *Server, monitor Monitor, store subscription.Store) {
	a := &actions{monitor: monitor, store: store}
	server.Handle(ActionStatus, a.status)
	server.Handle(ActionSetBootMinutes, a.setBootMinutes)
	server.Handle(ActionSetDefaultBootMinutes, a.setDefaultBootMinutes)
	server.Handle(ActionSetAllBootMinutes, a.setAllBootMinutes)
	server.Handle(ActionSubscribe, a.subscribe)
	server.Handle(ActionUnsubscribe, a.unsubscribe)
	server.Handle(ActionSubscriptions, a.subscriptions)
}

type actions struct {
	monitor Monitor
	store   subscription.Store
}

func decodeRequest(raw []byte) (Request, error) {
	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return request, fmt.Errorf("invalid request: %w", err)
	}
	if request.Network == "" {
		request.Network = DefaultNetwork
	}
	return request, nil
}

func (a *actions) engine(network string) (*transition.Engine, error) {
	engine, ok := a.monitor.Engine(network)
	if !ok {
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return engine, nil
}

// status returns every network, or only the one named.
func (a *actions) status(_ context.Context, raw []byte) (any, error) {
	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	names := a.monitor.Networks()
	if request.Network != "" {
		names = []string{request.Network}
	}
	statuses := make([]scheduler.NetworkStatus, 0, len(names))
	for _, name := range names {
		status, ok := a.monitor.Status(name)
		if !ok {
			return nil, fmt.Errorf("unknown network %q", name)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (a *actions) setBootMinutes(_ context.Context, raw []byte) (any, error) {
	request, err := decodeRequest(raw)
	if err != nil {
		return nil, err
	}
	if request.NodeID == 0 {
		return nil, fmt.Errorf("node_id is required")
	}
	engine, err := a.engine(request.Network)
	if err != nil {
		return nil, err
	}
	if err := engine.Wake().SetMaxBootMinutes(request.NodeID, request.Minutes); err != nil {
		return nil, err
	}
	return BootMinutesResult{Network: request.Network, NodeID: request.NodeID, Minutes: request.Minutes}, nil
}

func (a *actions) setDefaultBootMinutes(_ context.Context, raw []byte) (any, error) {
	request, err := decodeRequest(raw)
	if err != nil {
		return nil, err
	}
	engine, err := a.engine(request.Network)
	if err != nil {
		return nil, err
	}
	if err := engine.Wake().SetDefaultMaxBootMinutes(request.Minutes); err != nil {
		return nil, err
	}
	return BootMinutesResult{Network: request.Network, Minutes: request.Minutes}, nil
}

func (a *actions) setAllBootMinutes(_ context.Context, raw []byte) (any, error) {
	request, err := decodeRequest(raw)
	if err != nil {
		return nil, err
	}
	engine, err := a.engine(request.Network)
	if err != nil {
		return nil, err
	}
	if err := engine.Wake().SetAllMaxBootMinutes(request.Minutes); err != nil {
		return nil, err
	}
	return BootMinutesResult{
		Network: request.Network,
		Minutes: request.Minutes,
		Nodes:   len(engine.Wake().Entries()),
	}, nil
}

func (a *actions) subscribe(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeRequest(raw)
	if err != nil {
		return nil, err
	}
	if _, err := a.engine(request.Network); err != nil {
		return nil, err
	}
	added, err := a.store.Subscribe(ctx, subscription.Subscription{
		Network:  request.Network,
		NodeID:   request.NodeID,
		Observer: request.Observer,
	})
	if err != nil {
		return nil, err
	}
	result := SubscriptionResult{Network: request.Network, NodeID: request.NodeID, Observer: request.Observer}
	if added {
		result.Changed = 1
	}
	return result, nil
}

func (a *actions) unsubscribe(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeRequest(raw)
	if err != nil {
		return nil, err
	}
	if request.Observer == "" {
		return nil, fmt.Errorf("observer is required")
	}
	result := SubscriptionResult{Network: request.Network, Observer: request.Observer}

	if request.All {
		removed, err := a.store.UnsubscribeAll(ctx, request.Network, request.Observer)
		if err != nil {
			return nil, err
		}
		result.Changed = removed
		return result, nil
	}

	if request.NodeID == 0 {
		return nil, fmt.Errorf("node_id is required unless all is set")
	}
	removed, err := a.store.Unsubscribe(ctx, subscription.Subscription{
		Network:  request.Network,
		NodeID:   request.NodeID,
		Observer: request.Observer,
	})
	if err != nil {
		return nil, err
	}
	result.NodeID = request.NodeID
	if removed {
		result.Changed = 1
	}
	return result, nil
}

func (a *actions) subscriptions(ctx context.Context, raw []byte) (any, error) {
	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Observer == "" {
		return nil, fmt.Errorf("observer is required")
	}
	subs, err := a.store.Subscriptions(ctx, request.Observer)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []subscription.Subscription{}
	}
	return subs, nil
}
