// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package thread implements the preemptive kernel scheduler's thread
// table, ready queue, and the schedule()/next_to_run() dispatch core.
//
// Go gives us no raw switch_context(prev, next) primitive, so each
// simulated thread is backed by one real goroutine that is either
// RUNNING (actively executing) or parked receiving on its own resume
// channel. Dispatch hands a single-use baton from one goroutine to the
// next by sending the outgoing thread's pointer on the incoming
// thread's resume channel; at most one goroutine is ever unparked at a
// time, which is exactly the single-logical-CPU invariant the rest of
// the scheduler depends on. See DESIGN.md for the full mapping from
// spec.md's external collaborators to this representation.
package thread

import (
	"fmt"
	"sync"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/o11y/klog"
)

// Priority bounds and the preemption quantum, per spec.md §3/§4.1.
const (
	PriMin    = 0
	PriMax    = 63
	TimeSlice = 4 // ticks per quantum before forced yield

	nameMax = 15 // characters, not counting the NUL terminator
	magic   = 0xcd6abf4b
)

// Status is a thread's scheduling state.
type Status int

const (
	Blocked Status = iota
	Ready
	Running
	Dying
)

func (s Status) String() string {
	switch s {
	case Blocked:
		return "BLOCKED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Dying:
		return "DYING"
	default:
		return "UNKNOWN"
	}
}

// Lock is the subset of *lock.Lock that thread needs to know about for
// owned_locks/blocked_on bookkeeping, expressed as an interface so that
// kernel/sync/lock (which itself depends on kernel/thread) doesn't create
// an import cycle back into this package.
type Lock interface {
	// MaxWaiterPriority returns the lock's current max_waiter_priority.
	MaxWaiterPriority() int
	// Name returns the lock's debug name, for ForEach/debugsvc snapshots.
	Name() string
}

// Thread is one entry in the thread table.
type Thread struct {
	tid  int
	name string

	mu              sync.Mutex // guards fields also read by ForEach/debugsvc snapshots
	status          Status
	basePriority    int
	donatedPriority int
	ownedLocks      []Lock
	blockedOn       Lock
	wakeTime        int64

	resume chan *Thread // the execution baton; see package doc

	entry func(aux any)
	aux   any

	magic uint32
}

// LogIdent implements o11y/klog.Identer.
func (t *Thread) LogIdent() string {
	if t == nil {
		return "none"
	}
	return fmt.Sprintf("tid=%d %s", t.tid, t.name)
}

// Tid returns the thread's identifier, unique within its Kernel.
func (t *Thread) Tid() int { return t.tid }

// Name returns the thread's debug name.
func (t *Thread) Name() string { return t.name }

// Status returns the thread's current scheduling status.
func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// BasePriority returns the thread's base (non-donated) priority.
func (t *Thread) BasePriority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.basePriority
}

// DonatedPriority returns the thread's currently donated priority, or 0
// if no donation is active.
func (t *Thread) DonatedPriority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.donatedPriority
}

// EffectivePriority returns max(base, donated), the value used for every
// scheduling and wait-queue decision (spec.md §4.5/GLOSSARY).
func (t *Thread) EffectivePriority() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.effectivePriorityLocked()
}

func (t *Thread) effectivePriorityLocked() int {
	if t.donatedPriority > t.basePriority {
		return t.donatedPriority
	}
	return t.basePriority
}

// BlockedOn returns the lock this thread is waiting to acquire, or nil.
func (t *Thread) BlockedOn() Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockedOn
}

// SetBlockedOn records the lock this thread is about to block on.
// Precondition: interrupts OFF (called only from kernel/sync/lock.Acquire).
func (t *Thread) SetBlockedOn(l Lock) {
	intr.AssertOff()
	t.mu.Lock()
	t.blockedOn = l
	t.mu.Unlock()
}

// OwnedLocks returns a snapshot of the locks this thread currently holds.
func (t *Thread) OwnedLocks() []Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Lock, len(t.ownedLocks))
	copy(out, t.ownedLocks)
	return out
}

// AddOwnedLock records that this thread now holds l. Precondition:
// interrupts OFF.
func (t *Thread) AddOwnedLock(l Lock) {
	intr.AssertOff()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range t.ownedLocks {
		if o == l {
			klog.Fatalf(t, "lock already in owned_locks")
		}
	}
	t.ownedLocks = append(t.ownedLocks, l)
}

// RemoveOwnedLock removes l from this thread's owned-lock list.
// Precondition: interrupts OFF.
func (t *Thread) RemoveOwnedLock(l Lock) {
	intr.AssertOff()
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, o := range t.ownedLocks {
		if o == l {
			t.ownedLocks = append(t.ownedLocks[:i], t.ownedLocks[i+1:]...)
			return
		}
	}
	klog.Fatalf(t, "release of a lock not in owned_locks")
}

// SetDonatedPriority overwrites the thread's donated priority.
// Precondition: interrupts OFF.
func (t *Thread) SetDonatedPriority(p int) {
	intr.AssertOff()
	t.mu.Lock()
	t.donatedPriority = p
	t.mu.Unlock()
}

// RaiseDonatedPriority raises the thread's donated priority to at least
// p, never lowering it. Precondition: interrupts OFF.
func (t *Thread) RaiseDonatedPriority(p int) {
	intr.AssertOff()
	t.mu.Lock()
	if p > t.donatedPriority {
		t.donatedPriority = p
	}
	t.mu.Unlock()
}

// WakeTime returns the tick value at which a sleeping thread should wake.
func (t *Thread) WakeTime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wakeTime
}

func (t *Thread) setWakeTime(v int64) {
	t.mu.Lock()
	t.wakeTime = v
	t.mu.Unlock()
}

func (t *Thread) checkMagic() {
	if t.magic != magic {
		klog.Fatalf(t, "stack overflow detected: thread magic corrupted")
	}
}

func truncateName(name string) string {
	if len(name) > nameMax {
		return name[:nameMax]
	}
	return name
}
