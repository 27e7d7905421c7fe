// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package semaphore_test

import (
	"sync"
	"testing"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
)

func bootKernel(t *testing.T, priority int) *thread.Kernel {
	t.Helper()
	intr.Disable()
	return thread.Init("main", priority, 0)
}

func TestSemaphoreBasicDownUp(t *testing.T) {
	k := bootKernel(t, thread.PriMax/2)
	k.Start()

	s := semaphore.New(k, t.Name(), 1)
	if !s.TryDown() {
		t.Fatalf("TryDown on a value-1 semaphore should succeed")
	}
	if s.TryDown() {
		t.Fatalf("TryDown on a value-0 semaphore should fail")
	}
	s.Up()
	if s.Value() != 1 {
		t.Fatalf("Value() = %d; want 1", s.Value())
	}
}

// TestSemaphoreWakesHighestPriorityWaiter covers spec.md §8's example 6:
// two threads at different priorities both block on Down of a
// zero-valued semaphore; a single Up wakes the higher-priority one
// regardless of which called Down first.
func TestSemaphoreWakesHighestPriorityWaiter(t *testing.T) {
	k := bootKernel(t, 5) // lower than both waiters, so Create yields to them
	k.Start()

	s := semaphore.New(k, t.Name(), 0)

	var mu sync.Mutex
	var woke []string
	record := func(name string) {
		mu.Lock()
		woke = append(woke, name)
		mu.Unlock()
	}

	if _, err := k.Create("low", 25, func(any) {
		s.Down()
		record("low")
	}, nil); err != nil {
		t.Fatalf("Create(low): %v", err)
	}
	if _, err := k.Create("high", 35, func(any) {
		s.Down()
		record("high")
	}, nil); err != nil {
		t.Fatalf("Create(high): %v", err)
	}

	if n := s.WaiterCount(); n != 2 {
		t.Fatalf("WaiterCount() = %d; want 2 (both threads should be blocked)", n)
	}

	s.Up() // wakes the higher-priority waiter first
	s.Up() // then the remaining one

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "low"}
	if len(woke) != len(want) {
		t.Fatalf("woke = %v; want %v", woke, want)
	}
	for i := range want {
		if woke[i] != want[i] {
			t.Fatalf("woke = %v; want %v", woke, want)
		}
	}
}
