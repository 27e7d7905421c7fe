// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cond_test

import (
	"sync"
	"testing"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/cond"
	"go.kernelsched.dev/sched/kernel/sync/lock"
	"go.kernelsched.dev/sched/kernel/thread"
)

func bootKernel(t *testing.T, priority int) *thread.Kernel {
	t.Helper()
	intr.Disable()
	k := thread.Init("main", priority, 0)
	k.Start()
	return k
}

// TestCondSignalWakesHighestPriorityWaiter covers spec.md §4.6's
// re-sort-before-pop rule: Signal always wakes the highest-effective
// -priority waiter, regardless of the order threads called Wait in.
func TestCondSignalWakesHighestPriorityWaiter(t *testing.T) {
	k := bootKernel(t, 5)
	l := lock.New(k, "l")
	c := cond.New(k, "c")

	var mu sync.Mutex
	var done []string
	record := func(s string) {
		mu.Lock()
		done = append(done, s)
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

	if _, err := k.Create("low", 25, waiter("low-done"), nil); err != nil {
		t.Fatalf("Create(low): %v", err)
	}
	if _, err := k.Create("high", 35, waiter("high-done"), nil); err != nil {
		t.Fatalf("Create(high): %v", err)
	}
	if n := c.WaiterCount(); n != 2 {
		t.Fatalf("WaiterCount() = %d; want 2", n)
	}

	// Wake them one at a time, highest priority first.
	l.Acquire()
	c.Signal(l)
	l.Release()

	l.Acquire()
	c.Signal(l)
	l.Release()

	mu.Lock()
	defer mu.Unlock()
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

// TestCondBroadcastWakesAllInPriorityOrder covers spec.md §4.6's
// broadcast(): every waiter is eventually woken, highest priority first.
func TestCondBroadcastWakesAllInPriorityOrder(t *testing.T) {
	k := bootKernel(t, 5)
	l := lock.New(k, "l")
	c := cond.New(k, "c")

	var mu sync.Mutex
	var done []string
	record := func(s string) {
		mu.Lock()
		done = append(done, s)
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

	if _, err := k.Create("low", 15, waiter("low-done"), nil); err != nil {
		t.Fatalf("Create(low): %v", err)
	}
	if _, err := k.Create("mid", 25, waiter("mid-done"), nil); err != nil {
		t.Fatalf("Create(mid): %v", err)
	}
	if _, err := k.Create("high", 40, waiter("high-done"), nil); err != nil {
		t.Fatalf("Create(high): %v", err)
	}

	l.Acquire()
	c.Broadcast(l)
	l.Release()

	if n := c.WaiterCount(); n != 0 {
		t.Fatalf("WaiterCount() after Broadcast = %d; want 0", n)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high-done", "mid-done", "low-done"}
	if len(done) != len(want) {
		t.Fatalf("done = %v; want %v", done, want)
	}
	for i := range want {
		if done[i] != want[i] {
			t.Fatalf("done = %v; want %v", done, want)
		}
	}
}
