// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nodewatch/lib/control"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)

	statusColors = map[node.Status]lipgloss.Color{
		node.StatusUp:            lipgloss.Color("2"),
		node.StatusStandby:       lipgloss.Color("4"),
		node.StatusWaking:        lipgloss.Color("3"),
		node.StatusWakingBlocked: lipgloss.Color("1"),
		node.StatusDown:          lipgloss.Color("1"),
	}
)

func (a *app) statusCommand() *command {
	var conn connection
	return &command{
		name:    "status",
		summary: "Show every tracked node and the last poll cycle",
		usage:   "nodewatch-ctl status [--network NAME] [--json]",
		flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			a.addConnectionFlags(flagSet, &conn)
			return flagSet
		},
		run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("status takes no arguments")
			}
			var statuses []scheduler.NetworkStatus
			if err := conn.call(control.ActionStatus, map[string]any{}, &statuses); err != nil {
				return err
			}
			if conn.json {
				return a.writeJSON(statuses)
			}
			renderStatus(a.stdout, statuses, time.Now(), a.terminal)
			return nil
		},
	}
}

// renderStatus prints one block per network. Colour is used only when
// styled is set.
func renderStatus(w io.Writer, statuses []scheduler.NetworkStatus, now time.Time, styled bool) {
	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	for i, status := range statuses {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s  every %s  default boot window %d min\n",
			style(headingStyle, status.Network), status.State, status.Interval, status.DefaultBootMinutes)
		if cycle := status.LastCycle; cycle != nil {
			fmt.Fprintln(w, style(dimStyle, fmt.Sprintf("last cycle %s: %s, %d nodes, %d events, %d node errors, took %s",
				formatAge(now.Sub(cycle.StartedAt)), cycle.Result, cycle.Nodes, cycle.Events, cycle.NodeErrors,
				cycle.Duration.Round(time.Millisecond))))
		} else {
			fmt.Fprintln(w, style(dimStyle, "no cycle has completed"))
		}
		if len(status.Nodes) == 0 {
			fmt.Fprintln(w, "no nodes tracked")
			continue
		}

		rows := make([][]string, 0, len(status.Nodes))
		for _, view := range status.Nodes {
			wakeAttempt := "-"
			if !view.Wake.LastWakeAttemptAt.IsZero() {
				wakeAttempt = formatAge(now.Sub(view.Wake.LastWakeAttemptAt))
			}
			statusText := view.Status.String()
			if color, ok := statusColors[view.Status]; ok {
				statusText = style(lipgloss.NewStyle().Foreground(color), statusText)
			}
			rows = append(rows, []string{
				view.NodeID.String(),
				statusText,
				view.Record.Power.State.String() + "/" + view.Record.Power.Target.String(),
				formatAge(now.Sub(view.Record.UpdatedAt)),
				strconv.Itoa(view.Wake.MaxBootMinutes),
				wakeAttempt,
			})
		}
		nodes := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("NODE", "STATUS", "POWER", "LAST SEEN", "BOOT MIN", "WAKE ATTEMPT").
			Rows(rows...)
		if styled {
			nodes = nodes.StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headingStyle.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		} else {
			nodes = nodes.StyleFunc(func(int, int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 1)
			})
		}
		fmt.Fprintln(w, nodes.String())
	}
}

// formatAge renders d as a coarse "ago" string.
func formatAge(d time.Duration) string {
	switch {
	case d < 0:
		return "in the future"
	case d < time.Minute:
		return strconv.Itoa(int(d.Seconds())) + "s ago"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 48*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	}
	return strconv.Itoa(int(d.Hours()/24)) + "d ago"
}
