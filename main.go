// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Sched is a single-CPU, strict-priority kernel thread scheduler with
// priority donation, simulated over goroutines.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	log "github.com/golang/glog"
	"github.com/google/subcommands"

	"go.kernelsched.dev/sched/subcmd/ps"
	"go.kernelsched.dev/sched/subcmd/run"
	"go.kernelsched.dev/sched/subcmd/scenario"
	subcmdtrace "go.kernelsched.dev/sched/subcmd/trace"
	subcmdversion "go.kernelsched.dev/sched/subcmd/version"
	"go.kernelsched.dev/sched/ui"

	_ "net/http/pprof" // import to let pprof register its HTTP handlers
)

var (
	pprofAddr    string
	cpuprofile   string
	memprofile   string
	mutexprofile string
	traceFile    string
)

const versionID = "v0.1.0"

func main() {
	// Wraps schedMain() because os.Exit() doesn't wait defers.
	os.Exit(schedMain())
}

func schedMain() int {
	flag.CommandLine.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, `sched %s

Usage: sched [flags] [command] [arguments]

e.g.
 $ sched run workload.star
 $ sched scenario
 $ sched ps -state_dir .
 $ sched trace dump -state_dir .

Use "sched help" to display commands.
Use "sched help [command]" for more information about a command.
`, versionID)
	}

	flag.StringVar(&pprofAddr, "pprof_addr", "", `listen address for "go tool pprof". e.g. "localhost:6060"`)
	flag.StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to this file")
	flag.StringVar(&memprofile, "memprofile", "", "write memory profile to this file")
	flag.StringVar(&mutexprofile, "mutexprofile", "", "write mutex profile to this file")
	flag.StringVar(&traceFile, "trace", "", `go trace output for "go tool trace"`)

	var printVersion bool
	flag.BoolVar(&printVersion, "version", false, "print version")
	flag.Parse()

	ctx := context.Background()
	// Flush the log on exit to not lose any messages.
	defer log.Flush()

	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	if printVersion {
		return int(subcmdversion.Cmd(versionID).Execute(ctx, flag.CommandLine))
	}

	// Start an HTTP server that can be used to profile sched during runtime.
	if pprofAddr != "" {
		fmt.Fprintf(os.Stderr, "pprof is enabled, listening at http://%s/debug/pprof/\n", pprofAddr)
		go func() {
			log.Infof("pprof http listener: %v", http.ListenAndServe(pprofAddr, nil))
		}()
	}

	// Save a CPU profile to disk on exit.
	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatalf("failed to create cpuprofile file: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Errorf("failed to start CPU profiler: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	// Save a heap profile to disk on exit.
	if memprofile != "" {
		f, err := os.Create(memprofile)
		if err != nil {
			log.Fatalf("failed to create memprofile file: %v", err)
		}
		defer func() {
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Errorf("failed to write heap profile: %v", err)
			}
		}()
	}

	// Save a mutex profile to disk on exit.
	if mutexprofile != "" {
		f, err := os.Create(mutexprofile)
		if err != nil {
			log.Fatalf("failed to create mutexprofile file: %v", err)
		}
		runtime.SetMutexProfileFraction(1)
		defer func() {
			if err := pprof.Lookup("mutex").WriteTo(f, 0); err != nil {
				log.Errorf("failed to write mutex profile: %v", err)
			}
			if err := f.Close(); err != nil {
				log.Errorf("failed to close mutexprofile file: %v", err)
			}
		}()
	}

	// Save a go trace to disk during execution.
	if traceFile != "" {
		fmt.Fprintf(os.Stderr, "enable go trace in %q\n", traceFile)
		f, err := os.Create(traceFile)
		if err != nil {
			log.Fatalf("failed to create go trace output file: %v", err)
		}
		defer func() {
			fmt.Fprintf(os.Stderr, "go trace: go tool trace %s\n", traceFile)
			if cerr := f.Close(); cerr != nil {
				log.Fatalf("failed to close go trace output file: %v", cerr)
			}
		}()
		if err := trace.Start(f); err != nil {
			log.Fatalf("failed to start go trace: %v", err)
		}
		defer trace.Stop()
	}

	// Initialize the UI and ensure we restore the state of the terminal upon exit.
	ui.Init()
	defer ui.Restore()

	subcommands.Register(run.Cmd(), "")
	subcommands.Register(scenario.Cmd(), "")
	subcommands.Register(ps.Cmd(), "investigation")
	subcommands.Register(subcmdtrace.Cmd(), "investigation")

	subcommands.Register(subcommands.FlagsCommand(), "command-help")
	subcommands.Register(subcommands.HelpCommand(), "command-help")
	subcommands.Register(subcmdversion.Cmd(versionID), "command-help")

	return int(subcommands.Execute(ctx))
}
