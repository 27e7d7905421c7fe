// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package thread_test

import (
	"sync"
	"testing"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/thread"
)

// bootKernel satisfies thread.Init's interrupts-off precondition and
// returns a fresh kernel. Each test gets its own *thread.Kernel, but all
// tests share the single process-wide kernel/intr gate (there is exactly
// one logical CPU) — fine because package tests run sequentially.
func bootKernel(t *testing.T, name string, priority, arenaCap int) *thread.Kernel {
	t.Helper()
	intr.Disable()
	return thread.Init(name, priority, arenaCap)
}

func TestStrictPriorityOrdering(t *testing.T) {
	k := bootKernel(t, "main", thread.PriMax/2, 0)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	for _, tc := range []struct {
		name string
		prio int
	}{
		{"low", 10},
		{"high", 50},
		{"mid", 30},
	} {
		tc := tc
		if _, err := k.Create(tc.name, tc.prio, func(any) { record(tc.name) }, nil); err != nil {
			t.Fatalf("Create(%s): %v", tc.name, err)
		}
	}

	// None of the above have run yet: Start hasn't been called, so
	// Create never yields away from this goroutine. Start is what
	// triggers the first real dispatch, and it should run strictly by
	// priority regardless of creation order.
	k.Start()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestCreatePreemptsLowerPriorityCreator(t *testing.T) {
	k := bootKernel(t, "main", 20, 0)
	k.Start()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	// Main is now a PriMax/2-equivalent... actually priority 20 here.
	// Creating a higher-priority thread after Start must preempt main
	// immediately (Create yields when the kernel has already started).
	record("main-before")
	if _, err := k.Create("urgent", 50, func(any) { record("urgent") }, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	record("main-after")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"main-before", "urgent", "main-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestSetPriorityYieldsToNowHigherThread(t *testing.T) {
	k := bootKernel(t, "main", 20, 0)
	k.Start()

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	if _, err := k.Create("waiting", 10, func(any) { record("waiting") }, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// "waiting" has lower priority than main (20), so it stays READY
	// without preempting.
	record("main-before")
	k.SetPriority(5) // now below "waiting": SetPriority must yield.
	record("main-after")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"main-before", "waiting", "main-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestCreateArenaExhaustion(t *testing.T) {
	k := bootKernel(t, "main", thread.PriMax/2, 1) // main alone fills the arena

	if _, err := k.Create("overflow", 10, func(any) {}, nil); err == nil {
		t.Fatalf("Create succeeded with a full arena; want ErrNoFreePage")
	} else if err != thread.ErrNoFreePage {
		t.Fatalf("Create error = %v; want ErrNoFreePage", err)
	}
}

func TestForEachVisitsLiveThreads(t *testing.T) {
	k := bootKernel(t, "main", thread.PriMax/2, 0)

	var names []string
	var mu sync.Mutex
	if _, err := k.Create("worker", 10, func(any) {
		mu.Lock()
		k.ForEach(func(th *thread.Thread) {
			names = append(names, th.Name())
		})
		mu.Unlock()
	}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	k.Start()

	mu.Lock()
	defer mu.Unlock()
	foundMain, foundWorker, foundIdle := false, false, false
	for _, n := range names {
		switch n {
		case "main":
			foundMain = true
		case "worker":
			foundWorker = true
		case "idle":
			foundIdle = true
		}
	}
	if !foundMain || !foundWorker || !foundIdle {
		t.Fatalf("ForEach names = %v; want main, worker, and idle all present", names)
	}
}
