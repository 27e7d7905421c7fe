// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package lock_test

import (
	"sync"
	"testing"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/lock"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
)

func bootKernel(t *testing.T, priority int) *thread.Kernel {
	t.Helper()
	intr.Disable()
	k := thread.Init("main", priority, 0)
	// Start is what makes Create yield to newly-created higher-priority
	// threads; without it every Create below would just enqueue threads
	// that never run.
	k.Start()
	return k
}

// TestSimpleDonationAndRestoration covers spec.md §8's donation examples:
// a low-priority holder is raised to a high-priority waiter's level while
// contested, and drops back to its base once the lock is released.
func TestSimpleDonationAndRestoration(t *testing.T) {
	k := bootKernel(t, 5) // lower than both of the threads below
	x := lock.New(k, "X")
	gate := semaphore.New(k, "gate", 0)

	var mu sync.Mutex
	var done []string
	record := func(s string) {
		mu.Lock()
		done = append(done, s)
		mu.Unlock()
	}

	low, err := k.Create("low", 10, func(any) {
		x.Acquire()
		gate.Down()
		x.Release()
		record("low-done")
	}, nil)
	if err != nil {
		t.Fatalf("Create(low): %v", err)
	}

	if low.EffectivePriority() != 10 {
		t.Fatalf("low.EffectivePriority() = %d before contention; want 10", low.EffectivePriority())
	}

	if _, err := k.Create("high", 50, func(any) {
		x.Acquire()
		x.Release()
		record("high-done")
	}, nil); err != nil {
		t.Fatalf("Create(high): %v", err)
	}

	if got := low.EffectivePriority(); got != 50 {
		t.Fatalf("low.EffectivePriority() = %d while high waits on X; want 50 (donated)", got)
	}

	gate.Up() // lets low release X, unblocking high

	if got := low.EffectivePriority(); got != 10 {
		t.Fatalf("low.EffectivePriority() = %d after releasing X; want 10 (restored)", got)
	}

	mu.Lock()
	defer mu.Unlock()
	// high becomes the highest-ready thread the instant it acquires X and
	// runs to completion before low ever gets back on the CPU — strict
	// priority means a lower-priority thread only resumes once every
	// higher-priority one that outranks it has fully finished, including
	// its own exit.
	want := []string{"high-done", "low-done"}
	if len(done) != len(want) {
		t.Fatalf("done = %v; want %v", done, want)
	}
	for i := range want {
		if done[i] != want[i] {
			t.Fatalf("done = %v; want %v", done, want)
		}
	}
}

// TestChainedPriorityDonation covers spec.md §4.5's chain requirement: H
// waits on Y held by M, M waits on X held by L — L must inherit H's
// priority even though H never touches X directly.
func TestChainedPriorityDonation(t *testing.T) {
	k := bootKernel(t, 5)
	x := lock.New(k, "X")
	y := lock.New(k, "Y")
	gate := semaphore.New(k, "gate", 0)

	var mu sync.Mutex
	var done []string
	record := func(s string) {
		mu.Lock()
		done = append(done, s)
		mu.Unlock()
	}

	l, err := k.Create("L", 10, func(any) {
		x.Acquire()
		gate.Down()
		x.Release()
		record("L-done")
	}, nil)
	if err != nil {
		t.Fatalf("Create(L): %v", err)
	}

	m, err := k.Create("M", 20, func(any) {
		y.Acquire()
		x.Acquire() // blocks: X held by L
		y.Release()
		x.Release()
		record("M-done")
	}, nil)
	if err != nil {
		t.Fatalf("Create(M): %v", err)
	}

	if got := m.EffectivePriority(); got != 20 {
		t.Fatalf("m.EffectivePriority() = %d before H joins; want 20", got)
	}
	if got := l.EffectivePriority(); got != 20 {
		t.Fatalf("l.EffectivePriority() = %d once M waits on X; want 20 (donated from M)", got)
	}

	if _, err := k.Create("H", 50, func(any) {
		y.Acquire() // blocks: Y held by M
		y.Release()
		record("H-done")
	}, nil); err != nil {
		t.Fatalf("Create(H): %v", err)
	}

	if got := m.EffectivePriority(); got != 50 {
		t.Fatalf("m.EffectivePriority() = %d once H waits on Y; want 50", got)
	}
	if got := l.EffectivePriority(); got != 50 {
		t.Fatalf("l.EffectivePriority() = %d; want 50 (donation propagated through the chain from H, via M, to L)", got)
	}

	gate.Up() // L releases X, which eventually lets the whole chain unwind

	if got := l.EffectivePriority(); got != 10 {
		t.Fatalf("l.EffectivePriority() = %d after L released X; want 10 (restored)", got)
	}

	mu.Lock()
	defer mu.Unlock()
	// Same cascade as the simple case, one level deeper: H (50) finishes
	// first, then M (20), then L (10) — each resumes only after every
	// thread that outranks it has completely finished.
	want := []string{"H-done", "M-done", "L-done"}
	if len(done) != len(want) {
		t.Fatalf("done = %v; want %v", done, want)
	}
	for i := range want {
		if done[i] != want[i] {
			t.Fatalf("done = %v; want %v", done, want)
		}
	}
}
