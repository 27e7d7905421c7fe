// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package scenario runs spec.md §8's six literal end-to-end scenarios,
// each against its own independently-Init'd *thread.Kernel, fanned out
// concurrently the way the teacher fans out independent units of work
// with errgroup.
package scenario

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/cond"
	"go.kernelsched.dev/sched/kernel/sync/lock"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
)

// Scenario is one named, independently runnable check.
type Scenario struct {
	Name string
	Run  func(ctx context.Context) error
}

// All is every scenario spec.md §8 names, in spec order.
var All = []Scenario{
	{"strict-priority", StrictPriority},
	{"simple-donation", SimpleDonation},
	{"nested-donation", NestedDonation},
	{"multiple-donations", MultipleDonations},
	{"cond-priority-order", CondPriorityOrder},
	{"semaphore-wake-order", SemaphoreWakeOrder},
}

// RunAll runs every scenario concurrently and aggregates failures. Each
// scenario owns an independent *thread.Kernel, so they share nothing but
// the process-wide kernel/intr gate.
func RunAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range All {
		g.Go(func() error {
			if err := s.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", s.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StrictPriority covers spec.md §8 scenario 1: A(20) and B(40) both loop
// recording their turn and yielding. Created before Start, so neither
// runs a single iteration until Start's dispatch cascade begins; once it
// does, B — strictly higher priority — exhausts every one of its
// iterations before A gets to run any of its own, regardless of how
// often B yields, because nothing outranks B until it is done.
func StrictPriority(ctx context.Context) error {
	intr.Disable()
	k := thread.Init("main", thread.PriMax/2, 0)
	const rounds = 50

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	if _, err := k.Create("A", 20, func(any) {
		for i := 0; i < rounds; i++ {
			record("A")
			k.Yield()
		}
	}, nil); err != nil {
		return err
	}
	if _, err := k.Create("B", 40, func(any) {
		for i := 0; i < rounds; i++ {
			record("B")
			k.Yield()
		}
	}, nil); err != nil {
		return err
	}

	k.Start()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2*rounds {
		return fmt.Errorf("recorded %d iterations; want %d", len(order), 2*rounds)
	}
	for i := 0; i < rounds; i++ {
		if order[i] != "B" {
			return fmt.Errorf("order[%d] = %q; want %q (B must exhaust every iteration before A runs any)", i, order[i], "B")
		}
	}
	for i := rounds; i < 2*rounds; i++ {
		if order[i] != "A" {
			return fmt.Errorf("order[%d] = %q; want %q", i, order[i], "A")
		}
	}
	return nil
}

// SimpleDonation covers spec.md §8 scenario 2. main runs at a lower
// priority than everything it creates, so each Create's post-Start
// auto-yield dispatches the new thread immediately — the same mechanism
// a real thread_create preemption check provides.
func SimpleDonation(ctx context.Context) error {
	intr.Disable()
	k := thread.Init("main", 5, 0)
	k.Start()

	x := lock.New(k, "X")
	flag := semaphore.New(k, "flag", 0)

	l, err := k.Create("L", 20, func(any) {
		x.Acquire()
		flag.Down() // spins on the shared flag
		x.Release()
	}, nil)
	if err != nil {
		return err
	}

	if _, err := k.Create("H", 40, func(any) {
		x.Acquire()
		x.Release()
	}, nil); err != nil {
		return err
	}

	if got := l.EffectivePriority(); got != 40 {
		return fmt.Errorf("L.EffectivePriority() = %d while H waits on X; want 40", got)
	}
	flag.Up()
	if got := l.EffectivePriority(); got != 20 {
		return fmt.Errorf("L.EffectivePriority() = %d after L released X; want 20", got)
	}
	return nil
}

// NestedDonation covers spec.md §8 scenario 3: H waits on Y held by M,
// M waits on X held by L; donation must propagate through M to L even
// though H never touches X.
func NestedDonation(ctx context.Context) error {
	intr.Disable()
	k := thread.Init("main", 5, 0)
	k.Start()

	x := lock.New(k, "X")
	y := lock.New(k, "Y")
	gate := semaphore.New(k, "gate", 0)

	l, err := k.Create("L", 20, func(any) {
		x.Acquire()
		gate.Down()
		x.Release()
	}, nil)
	if err != nil {
		return err
	}
	m, err := k.Create("M", 25, func(any) {
		y.Acquire()
		x.Acquire() // blocks: X held by L
		y.Release()
		x.Release()
	}, nil)
	if err != nil {
		return err
	}
	if _, err := k.Create("H", 40, func(any) {
		y.Acquire() // blocks: Y held by M
		y.Release()
	}, nil); err != nil {
		return err
	}

	if got := l.EffectivePriority(); got != 40 {
		return fmt.Errorf("L.EffectivePriority() = %d once H blocks on Y; want 40 (chained through M)", got)
	}
	if got := m.EffectivePriority(); got != 40 {
		return fmt.Errorf("M.EffectivePriority() = %d once H blocks on Y; want 40", got)
	}

	gate.Up() // unwinds the whole chain: L releases X, M proceeds and releases Y

	if got := m.EffectivePriority(); got != 25 {
		return fmt.Errorf("M.EffectivePriority() = %d after the chain unwinds; want 25", got)
	}
	if got := l.EffectivePriority(); got != 20 {
		return fmt.Errorf("L.EffectivePriority() = %d after the chain unwinds; want 20", got)
	}
	return nil
}

// MultipleDonations covers spec.md §8 scenario 4: L holds both X and Y;
// releasing one drops L only to the surviving lock's donation, not all
// the way to base.
func MultipleDonations(ctx context.Context) error {
	intr.Disable()
	k := thread.Init("main", 5, 0)
	k.Start()

	x := lock.New(k, "X")
	y := lock.New(k, "Y")
	gate := semaphore.New(k, "gate", 0)

	l, err := k.Create("L", 20, func(any) {
		x.Acquire()
		y.Acquire()
		gate.Down()
		x.Release()
		gate.Down()
		y.Release()
	}, nil)
	if err != nil {
		return err
	}
	if _, err := k.Create("H1", 40, func(any) {
		x.Acquire()
		x.Release()
	}, nil); err != nil {
		return err
	}
	if _, err := k.Create("H2", 35, func(any) {
		y.Acquire()
		y.Release()
	}, nil); err != nil {
		return err
	}

	if got := l.EffectivePriority(); got != 40 {
		return fmt.Errorf("L.EffectivePriority() = %d; want 40", got)
	}
	gate.Up()
	if got := l.EffectivePriority(); got != 35 {
		return fmt.Errorf("L.EffectivePriority() = %d after releasing X; want 35 (still donated from Y)", got)
	}
	gate.Up()
	if got := l.EffectivePriority(); got != 20 {
		return fmt.Errorf("L.EffectivePriority() = %d after releasing Y; want 20", got)
	}
	return nil
}

// CondPriorityOrder covers spec.md §8 scenario 5: wake order follows
// current effective priority, not priority at wait time — a waiter
// donated up after calling Wait must still be woken first.
func CondPriorityOrder(ctx context.Context) error {
	intr.Disable()
	k := thread.Init("main", 5, 0)
	k.Start()

	l := lock.New(k, "l")
	c := cond.New(k, "c")
	contested := lock.New(k, "contested")

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	waiter := func(name string) func(any) {
		return func(any) {
			l.Acquire()
			c.Wait(l)
			l.Release()
			record(name)
		}
	}

	if _, err := k.Create("p10", 10, func(any) {
		contested.Acquire() // never released: holds this until the scenario ends
		waiter("p10(donated-to-50)")(nil)
	}, nil); err != nil {
		return err
	}
	if _, err := k.Create("p20", 20, waiter("p20"), nil); err != nil {
		return err
	}
	if _, err := k.Create("p30", 30, waiter("p30"), nil); err != nil {
		return err
	}
	// Donate p10 up to 50 by contending the unrelated lock it holds,
	// before any cond.Signal — Signal must re-sort by current priority
	// to wake it first despite it having called Wait at priority 10.
	if _, err := k.Create("donor", 50, func(any) {
		contested.Acquire()
		contested.Release()
	}, nil); err != nil {
		return err
	}

	for range 3 {
		l.Acquire()
		c.Signal(l)
		l.Release()
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"p10(donated-to-50)", "p30", "p20"}
	if len(order) != len(want) {
		return fmt.Errorf("wake order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			return fmt.Errorf("wake order = %v; want %v", order, want)
		}
	}
	return nil
}

// SemaphoreWakeOrder covers spec.md §8 scenario 6.
func SemaphoreWakeOrder(ctx context.Context) error {
	intr.Disable()
	k := thread.Init("main", 5, 0)
	k.Start()

	s := semaphore.New(k, "s", 0)

	var mu sync.Mutex
	var order []string
	record := func(n string) {
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}

	if _, err := k.Create("p25", 25, func(any) {
		s.Down()
		record("p25")
	}, nil); err != nil {
		return err
	}
	if _, err := k.Create("p35", 35, func(any) {
		s.Down()
		record("p35")
	}, nil); err != nil {
		return err
	}

	s.Up() // wakes the higher-priority waiter regardless of insertion order

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 1 || order[0] != "p35" {
		return fmt.Errorf("first woken = %v; want [p35]", order)
	}
	return nil
}
