// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package thread

import (
	"go.kernelsched.dev/sched/kernel/intr"
)

// Sleep blocks the calling thread for at least the given number of
// ticks. spec.md §3 reserves wake_time "for an external sleep facility"
// it deliberately leaves unspecified; this is that facility, layered
// strictly above Block and the tick counter already specified in §4.1 —
// Sleep records wake_time, blocks, and a queue drained from Tick wakes
// the thread once the tick counter passes it. It is not a violation of
// the "no timed blocking on locks or condition variables" Non-goal:
// nothing here is interruptible or cancellable, only wakeable on
// schedule, same as a plain tick-counted sleep always has been.
//
// Disallowed from interrupt context. ticks <= 0 returns immediately
// without yielding the CPU.
func (k *Kernel) Sleep(ticks int64) {
	if ticks <= 0 {
		return
	}
	self := k.Current()
	old := intr.Disable()
	wake := k.ticks() + ticks
	self.setWakeTime(wake)
	k.sleeping = append(k.sleeping, self)
	k.Block()
	intr.SetLevel(old)
}

// ticks returns the monotonically increasing tick count this kernel has
// observed, the sum of the idle/kernel/user counters Tick maintains.
func (k *Kernel) ticks() int64 {
	return k.idleTicks + k.kernelTicks + k.userTicks
}

// wakeSleepers is called from Tick, interrupts already disabled and in
// interrupt context, to unblock any thread whose wake_time has passed.
// Unblock is interrupt-context safe by its own contract (spec.md §5).
func (k *Kernel) wakeSleepers() {
	intr.AssertOff()
	now := k.ticks()
	remaining := k.sleeping[:0]
	for _, t := range k.sleeping {
		if t.WakeTime() <= now {
			k.Unblock(t)
		} else {
			remaining = append(remaining, t)
		}
	}
	k.sleeping = remaining
}
