// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nodewatch/lib/control"
	"github.com/bureau-foundation/nodewatch/lib/node"
)

func (a *app) bootMinutesCommand() *command {
	var conn connection
	return &command{
		name:    "boot-minutes",
		summary: "Set how long one node may take to boot after a wake request",
		usage:   "nodewatch-ctl boot-minutes <node-id> <minutes> [flags]",
		examples: []example{
			{description: "Give a slow node on the test network 15 minutes", command: "nodewatch-ctl boot-minutes -n test 42 15"},
		},
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("boot-minutes", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: nodewatch-ctl boot-minutes <node-id> <minutes>")
			}
			id, err := node.ParseID(args[0])
			if err != nil {
				return err
			}
			minutes, err := parseMinutes(args[1])
			if err != nil {
				return err
			}
			var result control.BootMinutesResult
			if err := conn.call(control.ActionSetBootMinutes, map[string]any{
				"node_id": id,
				"minutes": minutes,
			}, &result); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(result)
			}
			fmt.Fprintf(a.stdout, "%s node %s: boot window %d minutes\n", result.Network, result.NodeID, result.Minutes)
			return nil
		},
	}
}

func (a *app) defaultBootMinutesCommand() *command {
	var conn connection
	return &command{
		name:    "default-boot-minutes",
		summary: "Set the boot window of nodes without an override",
		usage:   "nodewatch-ctl default-boot-minutes <minutes> [flags]",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("default-boot-minutes", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: nodewatch-ctl default-boot-minutes <minutes>")
			}
			minutes, err := parseMinutes(args[0])
			if err != nil {
				return err
			}
			var result control.BootMinutesResult
			if err := conn.call(control.ActionSetDefaultBootMinutes, map[string]any{"minutes": minutes}, &result); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(result)
			}
			fmt.Fprintf(a.stdout, "%s: default boot window %d minutes\n", result.Network, result.Minutes)
			return nil
		},
	}
}

func (a *app) allBootMinutesCommand() *command {
	var conn connection
	return &command{
		name:    "all-boot-minutes",
		summary: "Set the boot window of the default and every tracked node",
		usage:   "nodewatch-ctl all-boot-minutes <minutes> [flags]",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("all-boot-minutes", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: nodewatch-ctl all-boot-minutes <minutes>")
			}
			minutes, err := parseMinutes(args[0])
			if err != nil {
				return err
			}
			var result control.BootMinutesResult
			if err := conn.call(control.ActionSetAllBootMinutes, map[string]any{"minutes": minutes}, &result); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(result)
			}
			fmt.Fprintf(a.stdout, "%s: boot window %d minutes for the default and %d tracked nodes\n",
				result.Network, result.Minutes, result.Nodes)
			return nil
		},
	}
}

func parseMinutes(s string) (int, error) {
	minutes, err := strconv.Atoi(s)
	if err != nil || minutes <= 0 {
		return 0, fmt.Errorf("minutes must be a positive integer, got %q", s)
	}
	return minutes, nil
}
