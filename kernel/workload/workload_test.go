// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package workload_test

import (
	"testing"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/kernel/workload"
)

const lockHandoffScript = `
thread("L", priority=20)
thread("H", priority=40)
lock("X")
acquire("L", "X")
acquire("H", "X")
release("L", "X")
release("H", "X")
`

func TestLockHandoffScript(t *testing.T) {
	p, err := workload.Parse([]byte(lockHandoffScript), "handoff.star")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	intr.Disable()
	k := thread.Init("main", 5, 0)

	res, err := workload.Execute(k, p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !res.Locks["X"].Free() {
		t.Fatal("lock X still held after the workload finished")
	}
	if got := res.Threads["L"].EffectivePriority(); got != 20 {
		t.Fatalf("L.EffectivePriority() = %d; want 20 (restored after release)", got)
	}
}

const spinSignalScript = `
thread("W", priority=10)
thread("S", priority=20)
spin("W", until="ready")
signal("S", "ready")
`

// TestSpinSignalScript covers a waiter and its signaller being different
// threads: W's ticket opens as soon as it is known W will block (via
// TryDown), so S's signal step is free to run and fire the flag before
// or after W actually parks on it — either order must deliver the wake.
func TestSpinSignalScript(t *testing.T) {
	p, err := workload.Parse([]byte(spinSignalScript), "spin.star")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	intr.Disable()
	k := thread.Init("main", 5, 0)

	if _, err := workload.Execute(k, p); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestParseRejectsUndeclaredThread(t *testing.T) {
	const script = `
lock("X")
acquire("ghost", "X")
`
	if _, err := workload.Parse([]byte(script), "bad.star"); err == nil {
		t.Fatal("Parse succeeded for a script referencing an undeclared thread")
	}
}

func TestParseRejectsEmptyWorkload(t *testing.T) {
	if _, err := workload.Parse([]byte(""), "empty.star"); err == nil {
		t.Fatal("Parse succeeded for a script declaring no threads")
	}
}
