// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package run is the run subcommand: it executes a workload script
// against a fresh scheduler, optionally serving its thread table live
// over debugsvc and dumping a scheduling trace on exit.
package run

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	smetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"go.kernelsched.dev/sched/kernel/debugsvc"
	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/kernel/tickdriver"
	"go.kernelsched.dev/sched/kernel/trace"
	"go.kernelsched.dev/sched/kernel/workload"
	"go.kernelsched.dev/sched/o11y/metrics"
	"go.kernelsched.dev/sched/signals"
)

// Cmd returns the Command for the `run` subcommand.
func Cmd() *Command {
	return &Command{}
}

func (*Command) Name() string { return "run" }

func (*Command) Synopsis() string { return "run a workload script against a fresh scheduler" }

func (*Command) Usage() string {
	return `Run a workload script.

 $ sched run [-state_dir dir] [-trace file] [-tick_rate hz] [-o mlfqs] [-otel] workload.star
`
}

// Command implements the run subcommand.
type Command struct {
	stateDir  string
	traceFile string
	priority  int
	tickRate  float64
	o         string
	otel      bool
}

func (c *Command) SetFlags(flagSet *flag.FlagSet) {
	flagSet.StringVar(&c.stateDir, "state_dir", "", "if set, serve the thread table over debugsvc from this directory while the workload runs")
	flagSet.StringVar(&c.traceFile, "trace", "", "if set, write a zstd-compressed scheduling trace to this file")
	flagSet.IntVar(&c.priority, "main_priority", thread.PriMax/2, "priority of the implicit main thread the workload script runs under")
	flagSet.Float64Var(&c.tickRate, "tick_rate", 0, "if set above 0, fire synthetic timer interrupts at this rate (Hz) while the workload runs")
	flagSet.StringVar(&c.o, "o", "", `kernel option consumed via the boot glue (spec.md §6); the only recognized value is "mlfqs"`)
	flagSet.BoolVar(&c.otel, "otel", false, "if set, attach an OTel-backed metrics.Recorder and print a summary of recorded instruments on exit")
}

func (c *Command) Execute(ctx context.Context, flagSet *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if flagSet.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: run [flags] workload.star\n")
		return subcommands.ExitUsageError
	}
	filename := flagSet.Arg(0)
	src, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	prog, err := workload.Parse(src, filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithCancel(ctx)
	defer signals.HandleInterrupt(ctx, func() {
		cancel()
	})()

	intr.Disable()
	k := thread.Init("main", c.priority, 0)

	if c.o != "" {
		if c.o != "mlfqs" {
			fmt.Fprintf(os.Stderr, "Error: -o %q: only \"mlfqs\" is recognized\n", c.o)
			return subcommands.ExitUsageError
		}
		k.SetMLFQS(true)
	}

	var metricsReader *smetric.ManualReader
	if c.otel {
		reader, mp := metrics.NewManualReader()
		metricsReader = reader
		rec, err := metrics.NewOTel(mp.Meter("sched"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: otel: %v\n", err)
			return subcommands.ExitFailure
		}
		k.SetMetrics(rec)
	}

	var ring *trace.Ring
	if c.traceFile != "" || c.stateDir != "" {
		// Armed whenever a state dir is served too, even without -trace,
		// so `sched trace dump` has something to pull from a live run.
		ring = trace.NewRing(0)
		k.SetRecorder(ring)
	}

	if c.stateDir != "" {
		svc := debugsvc.New(k)
		svc.AttachRing(ring)
		go func() {
			if err := debugsvc.Serve(ctx, svc, c.stateDir); err != nil {
				fmt.Fprintf(os.Stderr, "debugsvc: %v\n", err)
			}
		}()
	}

	if c.tickRate > 0 {
		d := tickdriver.New(k, c.tickRate)
		go func() {
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "tickdriver: %v\n", err)
			}
		}()
	}

	res, err := workload.Execute(k, prog)
	cancel() // stop debugsvc before we report results and exit
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("run %s: %d threads, %d locks completed\n", k.RunID(), len(res.Threads), len(res.Locks))

	if metricsReader != nil {
		var rm metricdata.ResourceMetrics
		if err := metricsReader.Collect(context.Background(), &rm); err != nil {
			fmt.Fprintf(os.Stderr, "Error: otel: collect: %v\n", err)
			return subcommands.ExitFailure
		}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				fmt.Printf("otel: %s\n", m.Name)
			}
		}
	}

	if ring != nil && c.traceFile != "" {
		f, err := os.Create(c.traceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		defer f.Close()
		if err := ring.Dump(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writing trace: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("wrote trace to %s\n", c.traceFile)
	}
	return subcommands.ExitSuccess
}
