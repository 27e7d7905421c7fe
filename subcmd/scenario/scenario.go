// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package scenario is the scenario subcommand: it runs the built-in
// end-to-end scheduler scenarios and reports which passed.
package scenario

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	kscenario "go.kernelsched.dev/sched/kernel/scenario"
)

// Cmd returns the Command for the `scenario` subcommand.
func Cmd() *Command {
	return &Command{}
}

func (*Command) Name() string { return "scenario" }

func (*Command) Synopsis() string { return "run the built-in scheduler scenarios" }

func (*Command) Usage() string {
	return `Run the built-in end-to-end scheduler scenarios.

 $ sched scenario [-name strict-priority]
`
}

// Command implements the scenario subcommand.
type Command struct {
	name string
}

func (c *Command) SetFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&c.name, "name", "", "run only the named scenario; default runs all")
}

func (c *Command) Execute(_ context.Context, flagSet *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if flagSet.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "position arguments not expected\n")
		return subcommands.ExitUsageError
	}
	ctx := context.Background()
	if c.name == "" {
		if err := kscenario.RunAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("PASS: %d scenarios\n", len(kscenario.All))
		return subcommands.ExitSuccess
	}
	for _, s := range kscenario.All {
		if s.Name != c.name {
			continue
		}
		if err := s.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", s.Name, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("PASS %s\n", s.Name)
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(os.Stderr, "no such scenario: %s\n", c.name)
	return subcommands.ExitFailure
}
