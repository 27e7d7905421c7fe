// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace is the trace subcommand: it pulls a scheduling trace off
// a running scheduler over debugsvc and writes it to a zstd file, the
// way `sched ps` pulls a thread table instead.
package trace

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"go.kernelsched.dev/sched/kernel/debugsvc"
)

// Cmd returns the Command for the `trace` subcommand.
func Cmd() *Command {
	return &Command{}
}

func (*Command) Name() string { return "trace" }

func (*Command) Synopsis() string { return "dump a running scheduler's trace to a zstd file" }

func (*Command) Usage() string {
	return `Drain a running scheduler's trace recorder to a zstd file.

 $ sched trace dump [-state_dir dir] [-o file]

"dump" is currently the only recognized verb.
`
}

// Command implements the trace subcommand.
type Command struct {
	stateDir string
	out      string
}

func (c *Command) SetFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&c.stateDir, "state_dir", ".", "state directory a scheduler wrote its .sched_addr into")
	flagSet.StringVar(&c.out, "o", "trace.zst", "file to write the zstd-compressed trace to")
}

func (c *Command) Execute(ctx context.Context, flagSet *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if flagSet.NArg() != 1 || flagSet.Arg(0) != "dump" {
		fmt.Fprintf(os.Stderr, "usage: trace dump [-state_dir dir] [-o file]\n")
		return subcommands.ExitUsageError
	}

	addr, err := debugsvc.DialAddr(c.stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: trace: dial %s: %v\n", addr, err)
		return subcommands.ExitFailure
	}
	defer cc.Close()
	client := debugsvc.NewSchedulerDebugClient(cc)

	resp, err := client.DumpTrace(ctx, &emptypb.Empty{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: DumpTrace: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(c.out, resp.GetValue(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: writing %s: %v\n", c.out, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("wrote trace to %s\n", c.out)
	return subcommands.ExitSuccess
}
