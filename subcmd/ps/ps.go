// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ps is the ps subcommand: it lists the live threads of a
// running scheduler.
package ps

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"go.kernelsched.dev/sched/signals"
	"go.kernelsched.dev/sched/ui"
)

// Cmd returns the Command for the `ps` subcommand.
func Cmd() *Command {
	return &Command{}
}

func (*Command) Name() string { return "ps" }

func (*Command) Synopsis() string { return "display live threads of a running scheduler" }

func (*Command) Usage() string {
	return `Display the thread table of a running scheduler.

 $ sched ps [-state_dir dir]
`
}

// Command implements the ps subcommand.
type Command struct {
	stateDir string
	n        int
	interval time.Duration
	termui   bool
}

func (c *Command) SetFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&c.stateDir, "state_dir", ".", "state directory a scheduler wrote its .sched_addr into")
	flagSet.IntVar(&c.n, "n", 0, "limit number of threads shown if it is positive")
	flagSet.DurationVar(&c.interval, "interval", -1, "query interval if it is positive. default 1s on terminal")
}

func (c *Command) Execute(ctx context.Context, flagSet *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if flagSet.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "position arguments not expected\n")
		return subcommands.ExitUsageError
	}
	ctx, cancel := context.WithCancel(ctx)
	defer signals.HandleInterrupt(ctx, func() {
		cancel()
	})()

	if u, ok := ui.Default.(*ui.TermUI); ok {
		c.termui = true
		if c.n == 0 {
			c.n = u.Height() - 2
		}
		if c.interval < 0 {
			c.interval = 1 * time.Second
		}
	}

	src, err := newDebugSource(c.stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer src.close()

	ret := subcommands.ExitSuccess
	connected := false
	for {
		rows, err := src.fetch(ctx)
		switch {
		case err != nil && !connected:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		case err != nil:
			// The scheduler process has exited: fall back to plain
			// output for one last render and stop polling.
			c.termui = false
			ui.Default = ui.LogUI{}
			c.render(nil, rows)
			return ret
		default:
			connected = true
		}
		var lines []string
		if c.termui {
			lines = append(lines, fmt.Sprintf("\033[H\033[JScheduler at %s", src.location()))
			lines = append(lines, fmt.Sprintf("%4s %-12s %-10s %5s %5s %5s %-10s %s", "TID", "NAME", "STATUS", "BASE", "DON", "EFF", "OWNS", "BLOCKED ON"))
		} else {
			lines = append(lines, "\f\n")
			lines = append(lines, fmt.Sprintf("%4s %-12s %-10s %5s %5s %5s %-10s %s\n", "TID", "NAME", "STATUS", "BASE", "DON", "EFF", "OWNS", "BLOCKED ON"))
		}
		c.render(lines, rows)
		if c.interval <= 0 {
			break
		}
		select {
		case <-time.After(c.interval):
		case <-ctx.Done():
			return ret
		}
	}
	return ret
}

func (c *Command) render(lines []string, rows []threadRow) {
	headings := len(lines)
	for _, r := range rows {
		owns := fmt.Sprintf("%v", r.ownedLocks)
		if c.termui {
			lines = append(lines, fmt.Sprintf("%4d %-12s %-10s %5d %5d %5d %-10s %s", r.tid, r.name, r.status, r.base, r.donated, r.effective, owns, r.blockedOn))
		} else {
			lines = append(lines, fmt.Sprintf("%4d %-12s %-10s %5d %5d %5d %-10s %s\n", r.tid, r.name, r.status, r.base, r.donated, r.effective, owns, r.blockedOn))
		}
		if c.n > 0 && len(lines)-headings >= c.n {
			break
		}
	}
	lines = append(lines, fmt.Sprintf("threads=%d out of %d\n", len(lines)-headings, len(rows)))
	ui.Default.PrintLines(lines...)
}
