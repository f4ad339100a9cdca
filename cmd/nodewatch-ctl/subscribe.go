// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nodewatch/lib/control"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/subscription"
	"github.com/bureau-foundation/nodewatch/messaging"
)

func (a *app) subscribeCommand() *command {
	var conn connection
	return &command{
		name:    "subscribe",
		summary: "Send an observer alerts about a node",
		usage:   "nodewatch-ctl subscribe <observer> <node-id> [flags]",
		examples: []example{
			{description: "Alert a Telegram chat about node 7", command: "nodewatch-ctl subscribe telegram:123456789 7"},
			{description: "Alert a Matrix room", command: "nodewatch-ctl subscribe 'matrix:!ops:example.org' 7"},
		},
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("subscribe", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: nodewatch-ctl subscribe <observer> <node-id>")
			}
			observer, err := messaging.ParseObserverID(args[0])
			if err != nil {
				return err
			}
			id, err := node.ParseID(args[1])
			if err != nil {
				return err
			}
			var result control.SubscriptionResult
			if err := conn.call(control.ActionSubscribe, map[string]any{
				"observer": observer,
				"node_id":  id,
			}, &result); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(result)
			}
			if result.Changed == 0 {
				fmt.Fprintf(a.stdout, "%s is already subscribed to %s node %s\n", result.Observer, result.Network, result.NodeID)
				return nil
			}
			fmt.Fprintf(a.stdout, "%s subscribed to %s node %s\n", result.Observer, result.Network, result.NodeID)
			return nil
		},
	}
}

func (a *app) unsubscribeCommand() *command {
	var (
		conn connection
		all  bool
	)
	return &command{
		name:    "unsubscribe",
		summary: "Stop alerts about a node, or about every node with --all",
		usage:   "nodewatch-ctl unsubscribe <observer> (<node-id> | --all) [flags]",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("unsubscribe", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			flagSet.BoolVar(&all, "all", false, "remove every subscription of the observer in the network")
			return flagSet
		},
		run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 || (all == (len(args) == 2)) {
				return fmt.Errorf("usage: nodewatch-ctl unsubscribe <observer> (<node-id> | --all)")
			}
			observer, err := messaging.ParseObserverID(args[0])
			if err != nil {
				return err
			}
			fields := map[string]any{"observer": observer}
			if all {
				fields["all"] = true
			} else {
				id, err := node.ParseID(args[1])
				if err != nil {
					return err
				}
				fields["node_id"] = id
			}
			var result control.SubscriptionResult
			if err := conn.call(control.ActionUnsubscribe, fields, &result); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(result)
			}
			fmt.Fprintf(a.stdout, "removed %d subscription(s) of %s on %s\n", result.Changed, result.Observer, result.Network)
			return nil
		},
	}
}

func (a *app) subscriptionsCommand() *command {
	var conn connection
	return &command{
		name:    "subscriptions",
		summary: "List the nodes an observer is subscribed to",
		usage:   "nodewatch-ctl subscriptions <observer> [flags]",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("subscriptions", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: nodewatch-ctl subscriptions <observer>")
			}
			observer, err := messaging.ParseObserverID(args[0])
			if err != nil {
				return err
			}
			var subs []subscription.Subscription
			if err := conn.call(control.ActionSubscriptions, map[string]any{"observer": observer}, &subs); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(subs)
			}
			if len(subs) == 0 {
				fmt.Fprintf(a.stdout, "%s has no subscriptions\n", observer)
				return nil
			}
			for _, sub := range subs {
				fmt.Fprintf(a.stdout, "%s\t%s\n", sub.Network, sub.NodeID)
			}
			return nil
		},
	}
}
