// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package lock implements spec.md §4.4/§4.5: a binary semaphore plus
// holder bookkeeping and the priority-donation protocol that prevents
// unbounded priority inversion across chains of contested locks.
package lock

import (
	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/kernel/trace"
	"go.kernelsched.dev/sched/o11y/klog"
)

// Lock is a mutually exclusive lock with priority donation. The zero
// value is not usable; construct with New.
type Lock struct {
	name string
	k    *thread.Kernel

	inner *semaphore.Semaphore

	holder            *thread.Thread
	maxWaiterPriority int
}

// New creates a free lock.
func New(k *thread.Kernel, name string) *Lock {
	return &Lock{
		name:  name,
		k:     k,
		inner: semaphore.New(k, name+".inner", 1),
	}
}

// Name returns the lock's debug name, for kernel/debugsvc's ListThreads
// snapshot.
func (l *Lock) Name() string { return l.name }

// MaxWaiterPriority implements thread.Lock, letting kernel/thread record
// "the lock this thread is blocked on" without importing this package.
func (l *Lock) MaxWaiterPriority() int {
	old := intr.Disable()
	defer intr.SetLevel(old)
	return l.maxWaiterPriority
}

// HeldByCurrent reports whether the calling thread holds l.
func (l *Lock) HeldByCurrent() bool {
	old := intr.Disable()
	defer intr.SetLevel(old)
	return l.holder == l.k.Current()
}

// Free reports whether l is currently unheld.
func (l *Lock) Free() bool {
	old := intr.Disable()
	defer intr.SetLevel(old)
	return l.holder == nil
}

// TryAcquire attempts a non-blocking acquire. Requires the caller not
// already hold l. Callable from interrupt context.
func (l *Lock) TryAcquire() bool {
	self := l.k.Current()
	old := intr.Disable()
	if l.holder == self {
		intr.SetLevel(old)
		klog.Fatalf(self, "lock %q: TryAcquire: already held by current thread", l.name)
	}
	intr.SetLevel(old)

	if !l.inner.TryDown() {
		return false
	}
	old = intr.Disable()
	l.holder = self
	self.AddOwnedLock(l)
	intr.SetLevel(old)
	return true
}

// Acquire blocks until l is free, then takes it. Requires the caller not
// already hold l; disallowed from interrupt context.
func (l *Lock) Acquire() {
	self := l.k.Current()
	if intr.InInterruptContext() {
		klog.Fatalf(self, "lock %q: Acquire called from interrupt context", l.name)
	}

	// One disabled umbrella for the whole acquire, per spec.md §4.4 —
	// including the down() call, which only nests a no-op nested disable
	// of its own (spec.md §9 Open Question 3) and does not hand the CPU
	// back to us with interrupts on until our own caller's bracket.
	old := intr.Disable()
	defer intr.SetLevel(old)

	if l.holder == self {
		klog.Fatalf(self, "lock %q: Acquire: already held by current thread (not recursive)", l.name)
	}

	if l.inner.TryDown() {
		l.holder = self
		self.AddOwnedLock(l)
		return
	}

	l.propagate(self.EffectivePriority())
	self.SetBlockedOn(l)

	l.inner.Down()

	l.holder = self
	self.SetBlockedOn(nil)
	self.AddOwnedLock(l)
}

// propagate implements spec.md §4.5's donation walk. Precondition:
// interrupts OFF.
func (l *Lock) propagate(p int) {
	intr.AssertOff()
	if l == nil {
		return
	}
	if p > l.maxWaiterPriority {
		l.maxWaiterPriority = p
	}
	if l.holder == nil {
		return
	}
	l.holder.RaiseDonatedPriority(p)
	l.k.Reprioritize(l.holder)
	l.k.Trace(trace.Event{
		Kind: trace.DonationRaise, Tid: l.holder.Tid(), Name: l.holder.Name(),
		Priority: p, Detail: l.name,
	})
	l.k.Metrics().Donation("raise", l.holder.Tid(), p)
	if next, ok := l.holder.BlockedOn().(*Lock); ok {
		next.propagate(p)
	}
}

// Release gives up l. Requires the caller hold l; disallowed from
// interrupt context.
func (l *Lock) Release() {
	self := l.k.Current()
	if intr.InInterruptContext() {
		klog.Fatalf(self, "lock %q: Release called from interrupt context", l.name)
	}

	old := intr.Disable()
	if l.holder != self {
		intr.SetLevel(old)
		klog.Fatalf(self, "lock %q: Release: not held by current thread", l.name)
	}

	self.SetDonatedPriority(0)
	self.RemoveOwnedLock(l)
	for _, o := range self.OwnedLocks() {
		if ol, ok := o.(*Lock); ok {
			self.RaiseDonatedPriority(ol.maxWaiterPriority)
		}
	}
	l.k.Reprioritize(self)
	l.k.Trace(trace.Event{
		Kind: trace.DonationRestore, Tid: self.Tid(), Name: self.Name(),
		Priority: self.EffectivePriority(), Detail: l.name,
	})
	l.k.Metrics().Donation("restore", self.Tid(), self.EffectivePriority())

	l.holder = nil
	l.maxWaiterPriority = 0
	intr.SetLevel(old)

	l.inner.Up()
}
