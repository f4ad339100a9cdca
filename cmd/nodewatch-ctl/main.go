// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// nodewatch-ctl talks to a running nodewatch over its control socket
// and manages the daemon's sealed credentials.
package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/nodewatch/lib/control"
	"github.com/bureau-foundation/nodewatch/lib/process"
	"github.com/bureau-foundation/nodewatch/lib/version"
)

// EnvSocket overrides the default control socket path.
const EnvSocket = "NODEWATCH_SOCKET"

const defaultSocket = "/run/nodewatch/control.sock"

func main() {
	a := &app{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		terminal: term.IsTerminal(int(os.Stdout.Fd())),
		getenv:   os.Getenv,
	}
	if err := a.root().execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// app carries the process I/O so commands can run under test.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	terminal bool
	getenv   func(string) string
}

func (a *app) root() *command {
	return &command{
		name:    "nodewatch-ctl",
		summary: "Inspect and configure a running nodewatch.",
		subcommands: []*command{
			a.statusCommand(),
			a.bootMinutesCommand(),
			a.defaultBootMinutesCommand(),
			a.allBootMinutesCommand(),
			a.subscribeCommand(),
			a.unsubscribeCommand(),
			a.subscriptionsCommand(),
			a.keygenCommand(),
			a.sealCommand(),
			{
				name:    "version",
				summary: "Print version information",
				run: func([]string) error {
					version.Print("nodewatch-ctl")
					return nil
				},
			},
		},
	}
}

// connection holds the flags every socket command shares.
type connection struct {
	socket  string
	network string
	timeout time.Duration
	json    bool
}

func (a *app) addConnectionFlags(flagSet *pflag.FlagSet, conn *connection) {
	socket := a.getenv(EnvSocket)
	if socket == "" {
		socket = defaultSocket
	}
	flagSet.StringVar(&conn.socket, "socket", socket, "control socket path (env "+EnvSocket+")")
	flagSet.StringVarP(&conn.network, "network", "n", "", "network name (default: main, or all networks for status)")
	flagSet.DurationVar(&conn.timeout, "timeout", 30*time.Second, "request timeout")
	flagSet.BoolVar(&conn.json, "json", false, "print the response as JSON")
}

func (c *connection) call(action string, fields map[string]any, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if c.network != "" {
		fields["network"] = c.network
	}
	return control.NewClient(c.socket).Call(ctx, action, fields, result)
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
