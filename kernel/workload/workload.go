// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package workload interprets a small Starlark dialect describing a
// scheduler workload as data: threads, locks, and the ordered sequence
// of operations performed against them. It is the domain-level reuse of
// the teacher's "engine driven by a declarative build file" shape,
// applied to scheduler workloads instead of compile actions.
//
// A workload script looks like:
//
//	thread("L", priority=20)
//	thread("H", priority=40)
//	thread("S", priority=10)
//	lock("X")
//	acquire("L", "X")
//	spin("L", until="flag")
//	acquire("H", "X")   # blocks until L releases
//	signal("S", "flag")
//	release("L", "X")
//
// Operations are listed in the order they should be issued. Each one is
// tagged with the thread that issues it; a thread plays back only its
// own operations, in the order they appear in the script, gated by a
// chain of semaphore "tickets" so that e.g. H's acquire is never even
// attempted before L's precedes it in the script — independent of which
// thread the scheduler would otherwise have dispatched first.
package workload

import (
	"fmt"

	"go.starlark.net/starlark"

	"go.kernelsched.dev/sched/kernel/sync/lock"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
)

type opKind int

const (
	opAcquire opKind = iota
	opRelease
	opSpin
	opSignal
)

func (k opKind) String() string {
	switch k {
	case opAcquire:
		return "acquire"
	case opRelease:
		return "release"
	case opSpin:
		return "spin"
	case opSignal:
		return "signal"
	default:
		return "?"
	}
}

type step struct {
	kind   opKind
	thread string
	target string
}

type threadDecl struct {
	name     string
	priority int
}

// Program is a parsed, not-yet-executed workload.
type Program struct {
	threads []threadDecl
	locks   []string
	steps   []step
}

// Parse compiles src as the workload DSL. filename is used only for error
// messages.
func Parse(src []byte, filename string) (*Program, error) {
	p := &Program{}
	seenThread := map[string]bool{}
	seenLock := map[string]bool{}

	builtin := func(name string, fn func(args starlark.Tuple, kwargs []starlark.Tuple) error) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := fn(args, kwargs); err != nil {
				return nil, err
			}
			return starlark.None, nil
		})
	}

	requireThread := func(name string) error {
		if !seenThread[name] {
			return fmt.Errorf("workload: %q is not a declared thread", name)
		}
		return nil
	}
	requireLock := func(name string) error {
		if !seenLock[name] {
			return fmt.Errorf("workload: %q is not a declared lock", name)
		}
		return nil
	}

	predeclared := starlark.StringDict{
		"thread": builtin("thread", func(args starlark.Tuple, kwargs []starlark.Tuple) error {
			var name string
			priority := thread.PriMax / 2
			if err := starlark.UnpackArgs("thread", args, kwargs, "name", &name, "priority?", &priority); err != nil {
				return err
			}
			if seenThread[name] {
				return fmt.Errorf("workload: thread %q declared twice", name)
			}
			seenThread[name] = true
			p.threads = append(p.threads, threadDecl{name: name, priority: priority})
			return nil
		}),
		"lock": builtin("lock", func(args starlark.Tuple, kwargs []starlark.Tuple) error {
			var name string
			if err := starlark.UnpackArgs("lock", args, kwargs, "name", &name); err != nil {
				return err
			}
			if seenLock[name] {
				return fmt.Errorf("workload: lock %q declared twice", name)
			}
			seenLock[name] = true
			p.locks = append(p.locks, name)
			return nil
		}),
		"acquire": builtin("acquire", func(args starlark.Tuple, kwargs []starlark.Tuple) error {
			var th, ln string
			if err := starlark.UnpackArgs("acquire", args, kwargs, "thread", &th, "lock", &ln); err != nil {
				return err
			}
			if err := requireThread(th); err != nil {
				return err
			}
			if err := requireLock(ln); err != nil {
				return err
			}
			p.steps = append(p.steps, step{kind: opAcquire, thread: th, target: ln})
			return nil
		}),
		"release": builtin("release", func(args starlark.Tuple, kwargs []starlark.Tuple) error {
			var th, ln string
			if err := starlark.UnpackArgs("release", args, kwargs, "thread", &th, "lock", &ln); err != nil {
				return err
			}
			if err := requireThread(th); err != nil {
				return err
			}
			if err := requireLock(ln); err != nil {
				return err
			}
			p.steps = append(p.steps, step{kind: opRelease, thread: th, target: ln})
			return nil
		}),
		"spin": builtin("spin", func(args starlark.Tuple, kwargs []starlark.Tuple) error {
			var th, until string
			if err := starlark.UnpackArgs("spin", args, kwargs, "thread", &th, "until", &until); err != nil {
				return err
			}
			if err := requireThread(th); err != nil {
				return err
			}
			p.steps = append(p.steps, step{kind: opSpin, thread: th, target: until})
			return nil
		}),
		"signal": builtin("signal", func(args starlark.Tuple, kwargs []starlark.Tuple) error {
			var th, flag string
			if err := starlark.UnpackArgs("signal", args, kwargs, "thread", &th, "flag", &flag); err != nil {
				return err
			}
			if err := requireThread(th); err != nil {
				return err
			}
			p.steps = append(p.steps, step{kind: opSignal, thread: th, target: flag})
			return nil
		}),
	}

	starlarkThread := &starlark.Thread{Name: filename}
	if _, err := starlark.ExecFile(starlarkThread, filename, src, predeclared); err != nil {
		return nil, fmt.Errorf("workload: parsing %s: %w", filename, err)
	}
	if len(p.threads) == 0 {
		return nil, fmt.Errorf("workload: %s declares no threads", filename)
	}
	return p, nil
}

// Result holds what a workload built, for callers (tests, subcmd/run)
// that want to inspect final state after Execute returns.
type Result struct {
	Threads map[string]*thread.Thread
	Locks   map[string]*lock.Lock
	Flags   map[string]*semaphore.Semaphore
}

// Execute builds p's threads and locks on k and runs every operation to
// completion, blocking until all declared threads have finished. k must
// not have been started yet: Execute creates every declared thread
// before calling k.Start, the same pre-Start batching
// kernel/thread/thread_test.go's strict-ordering test relies on, so that no
// thread can run ahead of the script's first step regardless of
// priority.
func Execute(k *thread.Kernel, p *Program) (*Result, error) {
	res := &Result{
		Threads: make(map[string]*thread.Thread, len(p.threads)),
		Locks:   make(map[string]*lock.Lock, len(p.locks)),
		Flags:   make(map[string]*semaphore.Semaphore),
	}
	for _, ln := range p.locks {
		res.Locks[ln] = lock.New(k, ln)
	}
	flagFor := func(name string) *semaphore.Semaphore {
		if s, ok := res.Flags[name]; ok {
			return s
		}
		s := semaphore.New(k, name, 0)
		res.Flags[name] = s
		return s
	}
	for _, st := range p.steps {
		if st.kind == opSpin || st.kind == opSignal {
			flagFor(st.target)
		}
	}

	tickets := make([]*semaphore.Semaphore, len(p.steps)+1)
	for i := range tickets {
		tickets[i] = semaphore.New(k, fmt.Sprintf("workload.ticket[%d]", i), 0)
	}

	stepsByThread := make(map[string][]int, len(p.threads))
	for i, st := range p.steps {
		stepsByThread[st.thread] = append(stepsByThread[st.thread], i)
	}

	runStep := func(i int) {
		if i > 0 {
			tickets[i].Down()
		}
		// A ticket hand-off is this thread's only guaranteed safe point:
		// it just regained the CPU and hasn't touched a lock or flag yet,
		// so honoring a pending tick-driven preemption here (see
		// kernel/tickdriver) can never interrupt it mid-operation.
		if k.ConsumePreemptRequest() {
			k.Yield()
		}
		st := p.steps[i]
		opened := false
		open := func() {
			if !opened {
				opened = true
				tickets[i+1].Up()
			}
		}
		switch st.kind {
		case opAcquire:
			l := res.Locks[st.target]
			if l.TryAcquire() {
				open()
				return
			}
			open()
			l.Acquire()
		case opRelease:
			res.Locks[st.target].Release()
			open()
		case opSpin:
			f := res.Flags[st.target]
			if f.TryDown() {
				open()
				return
			}
			open()
			f.Down()
		case opSignal:
			res.Flags[st.target].Up()
			open()
		}
	}

	finished := semaphore.New(k, "workload.finished", 0)
	for _, td := range p.threads {
		steps := stepsByThread[td.name]
		name, priority := td.name, td.priority
		t, err := k.Create(name, priority, func(any) {
			for _, i := range steps {
				runStep(i)
			}
			finished.Up()
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("workload: creating thread %q: %w", name, err)
		}
		res.Threads[name] = t
	}

	k.Start()
	for range p.threads {
		finished.Down()
	}
	return res, nil
}
