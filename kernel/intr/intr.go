// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package intr models the interrupt-disable gate that the scheduler uses
// as its only mutual-exclusion primitive. There is exactly one logical
// CPU; disabling interrupts is the only way kernel code excludes the
// timer-tick handler, and it composes the way real cli/sti does: nested
// disables are idempotent, and a level is restored to exactly what it
// was, not merely flipped back on.
package intr

import (
	"sync"

	"go.kernelsched.dev/sched/o11y/klog"
)

// Level is the interrupt level, ON or OFF.
type Level int

const (
	// On means interrupts are enabled; the timer tick can preempt.
	On Level = iota
	// Off means interrupts are disabled; the caller holds the CPU.
	Off
)

func (l Level) String() string {
	if l == Off {
		return "OFF"
	}
	return "ON"
}

// big is the sole mutual-exclusion primitive below the scheduler. It is
// held for exactly as long as level is Off; level is only ever mutated
// while holding (or about to release) big, so plain fields are safe even
// though the tick driver runs on its own goroutine.
var (
	big         sync.Mutex
	level       = On
	inInterrupt bool
)

// Disable disables interrupts and returns the previous level. Calling it
// while interrupts are already Off is a no-op that returns Off, exactly
// as cli is idempotent on real hardware: it does NOT deadlock and it does
// NOT acquire a second lock.
func Disable() Level {
	old := level
	if old == Off {
		return Off
	}
	big.Lock()
	level = Off
	return On
}

// Enable restores interrupts to ON. Precondition: interrupts are Off.
func Enable() Level {
	return SetLevel(On)
}

// Current returns the current interrupt level.
func Current() Level { return level }

// SetLevel restores the interrupt level to l, which must be a level this
// goroutine previously observed via Disable or Current. Returns the level
// that was in effect before the call.
func SetLevel(l Level) Level {
	old := level
	if l == old {
		return old
	}
	if l == On {
		level = On
		big.Unlock()
		return old
	}
	big.Lock()
	level = Off
	return old
}

// InInterruptContext reports whether the calling goroutine is running as
// the simulated timer interrupt handler. Only kernel/tickdriver ever sets
// this; it is read-only everywhere else.
func InInterruptContext() bool {
	return inInterrupt
}

// EnterInterruptContext is called by kernel/tickdriver immediately after
// it acquires the big lock (i.e. after a Disable that returned On) and
// before invoking thread.Tick. It is not exported for general use outside
// the tick driver: the spec treats "interrupt context" as something only
// the timer path can be in.
func EnterInterruptContext() (leave func()) {
	inInterrupt = true
	return func() { inInterrupt = false }
}

// AssertOff halts the kernel if interrupts are not Off. Several
// operations (spec.md §4.1 block, §4.3 down, §4.4 acquire, §4.6 wait) are
// contract violations if called with interrupts enabled; violating the
// contract is fatal, not a recoverable error.
func AssertOff() {
	if level != Off {
		klog.Fatalf(nil, "intr: expected interrupts OFF, got %s", level)
	}
}

// AssertOn halts the kernel if interrupts are Off where they must not be
// (e.g. thread_yield, thread_exit are disallowed from interrupt context).
func AssertOn() {
	if level != On {
		klog.Fatalf(nil, "intr: expected interrupts ON, got %s", level)
	}
}
