// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tickdriver stands in for the hardware timer spec.md treats as
// an external collaborator ("invoked but not specified"). It paces
// synthetic timer interrupts at a configurable rate and fires
// kernel/thread.Tick on each one, with interrupts disabled and
// InInterruptContext set for the call's duration, matching spec.md §5's
// interrupt-context boundary.
package tickdriver

import (
	"context"

	"golang.org/x/time/rate"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/thread"
)

// Driver paces calls to kernel/thread.Tick.
type Driver struct {
	k       *thread.Kernel
	limiter *rate.Limiter
}

// New returns a Driver that fires ticks at ticksPerSecond, bursting at
// most one tick at a time (a real timer never coalesces interrupts).
func New(k *thread.Kernel, ticksPerSecond float64) *Driver {
	return &Driver{
		k:       k,
		limiter: rate.NewLimiter(rate.Limit(ticksPerSecond), 1),
	}
}

// Run fires ticks until ctx is cancelled. It is meant to run on its own
// goroutine, separate from every simulated thread's goroutine: Tick only
// ever touches state already synchronized by kernel/intr's gate, so it
// never needs to run "as" a particular thread the way schedule does.
//
// Run deliberately never calls Kernel.Yield. Tick's return value means
// "the running thread's slice has expired," but only that thread's own
// goroutine can act on that by calling schedule — a goroutine receiving
// on another thread's resume channel on its behalf would just block
// forever, since nothing sends to a channel nobody is blocked reading
// from a schedule(). Tick instead latches the request for the running
// thread to notice and act on at its own next safe point (see
// Kernel.ConsumePreemptRequest, consulted by kernel/workload's step
// operation). This mirrors the real constraint that a tick driver can
// only ever raise a flag for later code to notice, since Go runs every
// goroutine to completion of its current un-preemptible span.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			if _, ok := ctx.Deadline(); ok {
				// Wait refuses early once the next tick would land past
				// the deadline; no further tick can fire before then.
				<-ctx.Done()
				return ctx.Err()
			}
			return err
		}
		d.fire()
	}
}

// fire delivers one tick, unless interrupts are already off, in which
// case the tick is simply not delivered this instant — exactly as a real
// timer interrupt is held pending while IF is clear. The next paced
// attempt will likely find interrupts back on.
func (d *Driver) fire() {
	old := intr.Disable()
	if old != intr.On {
		intr.SetLevel(old)
		return
	}
	leave := intr.EnterInterruptContext()
	d.k.Tick()
	leave()
	intr.SetLevel(old)
}
