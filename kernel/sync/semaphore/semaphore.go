// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package semaphore implements spec.md §4.3's counting semaphore: the
// wait primitive everything else in kernel/sync is built from.
//
// The waiter collection is grounded on the teacher's
// sync/semaphore.Prioritized, a container/heap-backed priority queue
// keyed by request weight. That heap assumed weights never changed
// after a request was queued; here waiters' effective priority can rise
// at any time via donation, so a heap ordered once at insertion would go
// stale. Rather than thread heap.Fix plumbing through every donation
// site, this keeps the teacher's heap.Interface shape but re-establishes
// the heap invariant with a fresh heap.Init immediately before each pop
// — exactly the "signalling re-sorts before pop" rule spec.md §3 states
// for wait queues in general.
package semaphore

import (
	"container/heap"
	"time"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/o11y/klog"
)

type waiter struct {
	t     *thread.Thread
	index int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

// Less keys on live effective priority — not a value cached at Push
// time — so a heap.Init performed later observes any donation that
// happened while a waiter sat in the queue.
func (h waiterHeap) Less(i, j int) bool {
	return h[i].t.EffectivePriority() > h[j].t.EffectivePriority()
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Semaphore is a counting semaphore per spec.md §4.3. The zero value is
// not usable; construct with New.
type Semaphore struct {
	name string
	k    *thread.Kernel

	value   int
	waiters waiterHeap
}

// New creates a semaphore with the given initial value. k is the kernel
// instance whose scheduler primitives (Block/Unblock/Current) this
// semaphore blocks and wakes threads through — an explicit dependency
// where PintOS has an implicit single kernel, so independent
// kernel.Kernel instances (kernel/scenario) never share wait state.
func New(k *thread.Kernel, name string, value int) *Semaphore {
	s := &Semaphore{name: name, k: k, value: value}
	heap.Init(&s.waiters)
	return s
}

// Value returns the current counter value, read with the interrupt gate
// held; the value may change as soon as Value returns.
func (s *Semaphore) Value() int {
	old := intr.Disable()
	defer intr.SetLevel(old)
	return s.value
}

// Down blocks until the counter is positive, then decrements it.
// Disallowed from interrupt context. Precondition on entry: none — Down
// manages its own interrupt-disable bracket.
func (s *Semaphore) Down() {
	if intr.InInterruptContext() {
		klog.Fatalf(s.k.Current(), "semaphore %q: Down called from interrupt context", s.name)
	}
	old := intr.Disable()
	defer intr.SetLevel(old)

	self := s.k.Current()
	var blockedAt time.Time
	for s.value == 0 {
		if blockedAt.IsZero() {
			blockedAt = time.Now()
		}
		w := &waiter{t: self}
		heap.Push(&s.waiters, w)
		s.k.Block()
		// Resumed: the wake path already removed self from s.waiters
		// and marked it READY before unblocking it. Re-check the loop
		// condition — value may have been claimed by a concurrent
		// waiter that raced in via TryDown between Up and our
		// redispatch (spec.md §4.3's while-loop, not an if).
	}
	if !blockedAt.IsZero() {
		s.k.Metrics().WaitDuration("semaphore", time.Since(blockedAt))
	}
	s.value--
}

// TryDown attempts a non-blocking decrement. Callable from interrupt
// context.
func (s *Semaphore) TryDown() bool {
	old := intr.Disable()
	defer intr.SetLevel(old)
	if s.value == 0 {
		return false
	}
	s.value--
	return true
}

// Up increments the counter and wakes the highest-effective-priority
// waiter, if any. Yields immediately unless called from interrupt
// context, in which case the yield is deferred to the tick-return hook
// (spec.md §4.3, §5).
func (s *Semaphore) Up() {
	old := intr.Disable()
	if len(s.waiters) > 0 {
		heap.Init(&s.waiters) // re-sort: donations may have happened since insertion
		w := heap.Pop(&s.waiters).(*waiter)
		s.k.Unblock(w.t)
	}
	s.value++
	intr.SetLevel(old)
	if !intr.InInterruptContext() {
		s.k.Yield()
	}
}

// WaiterCount reports how many threads are currently blocked in Down,
// for debugsvc snapshots and tests.
func (s *Semaphore) WaiterCount() int {
	old := intr.Disable()
	defer intr.SetLevel(old)
	return len(s.waiters)
}
