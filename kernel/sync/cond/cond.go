// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cond implements spec.md §4.6's condition variable: a queue of
// per-waiter single-shot semaphores, signalled in priority order.
package cond

import (
	"sort"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/lock"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/o11y/klog"
)

type waiter struct {
	t    *thread.Thread
	sema *semaphore.Semaphore
}

// Cond is a condition variable associated with a lock at each call
// (rather than fixed at construction, matching spec.md §4.6's
// wait(c, l)/signal(c, l) signatures).
type Cond struct {
	k       *thread.Kernel
	name    string
	waiters []*waiter
}

// New creates an empty condition variable.
func New(k *thread.Kernel, name string) *Cond {
	return &Cond{k: k, name: name}
}

// Wait atomically releases l and blocks the caller until signalled, then
// re-acquires l before returning. Precondition: the caller holds l, not
// in interrupt context.
func (c *Cond) Wait(l *lock.Lock) {
	if intr.InInterruptContext() {
		klog.Fatalf(c.k.Current(), "cond %q: Wait called from interrupt context", c.name)
	}
	if !l.HeldByCurrent() {
		klog.Fatalf(c.k.Current(), "cond %q: Wait called without holding the lock", c.name)
	}
	self := c.k.Current()
	sema := semaphore.New(c.k, c.name+".waiter", 0)

	// Plain append, not a priority-ordered insert: Signal always re-sorts
	// the full slice before popping (below), so insertion order is
	// behaviorally irrelevant — the re-sort already has to happen there
	// to account for donations received after Wait was called.
	old := intr.Disable()
	c.waiters = append(c.waiters, &waiter{t: self, sema: sema})
	intr.SetLevel(old)

	l.Release()
	sema.Down()
	l.Acquire()
}

// Signal wakes the highest-effective-priority waiter, if any, and yields
// outside interrupt context. Precondition: the caller holds l.
func (c *Cond) Signal(l *lock.Lock) {
	if !l.HeldByCurrent() {
		klog.Fatalf(c.k.Current(), "cond %q: Signal called without holding the lock", c.name)
	}

	old := intr.Disable()
	if len(c.waiters) == 0 {
		intr.SetLevel(old)
		return
	}
	// Re-sort by current effective priority: donations may have raised
	// a waiter's priority since it called Wait (spec.md §4.6).
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].t.EffectivePriority() > c.waiters[j].t.EffectivePriority()
	})
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	intr.SetLevel(old)

	w.sema.Up()
}

// Broadcast wakes every waiter, in priority order, one per Signal call.
func (c *Cond) Broadcast(l *lock.Lock) {
	for {
		old := intr.Disable()
		empty := len(c.waiters) == 0
		intr.SetLevel(old)
		if empty {
			return
		}
		c.Signal(l)
	}
}

// WaiterCount reports how many threads are currently blocked in Wait,
// for debugsvc snapshots and tests.
func (c *Cond) WaiterCount() int {
	old := intr.Disable()
	defer intr.SetLevel(old)
	return len(c.waiters)
}
