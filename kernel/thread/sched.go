// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package thread

import (
	"fmt"

	"github.com/google/uuid"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/trace"
	"go.kernelsched.dev/sched/o11y/klog"
	"go.kernelsched.dev/sched/o11y/metrics"
)

// DefaultArenaCapacity bounds how many thread records a Kernel will hold
// live at once before Create starts returning ErrNoFreePage.
const DefaultArenaCapacity = 256

// Kernel is one instance of the scheduler: a thread table, a ready
// queue, and the dispatch core. Go's only true global resource is the
// shared kernel/intr gate (there is exactly one logical CPU,
// process-wide); everything else lives on *Kernel so independent
// scenarios can run concurrently against independent kernels (see
// kernel/scenario), the same way a real machine could in principle boot
// more than one partition sharing a single core.
type Kernel struct {
	name  string
	runID uuid.UUID

	ready readyQueue
	all   map[int]*Thread
	tids  tidAllocator
	arena *arena

	current  *Thread
	idle     *Thread
	initial  *Thread
	sleeping []*Thread // blocked in Sleep, awaiting wakeSleepers

	sliceTicks  int
	idleTicks   int64
	kernelTicks int64
	userTicks   int64

	mlfqs bool

	started        bool
	preemptPending bool

	rec trace.Recorder
	met metrics.Recorder
}

// Init installs the caller's current goroutine as the initial ("main")
// thread, with status RUNNING, and prepares the ready queue and thread
// table. Precondition: interrupts OFF (spec.md §4.1).
func Init(name string, priority int, arenaCapacity int) *Kernel {
	intr.AssertOff()
	if arenaCapacity <= 0 {
		arenaCapacity = DefaultArenaCapacity
	}
	k := &Kernel{
		name:  name,
		runID: uuid.New(),
		all:   make(map[int]*Thread),
		arena: newArena(arenaCapacity),
		rec:   trace.Nop,
		met:   metrics.Nop,
	}
	if !k.arena.alloc() {
		klog.Fatalf(nil, "thread: arena capacity %d too small to boot", arenaCapacity)
	}
	main := &Thread{
		tid:          k.tids.allocate(),
		name:         truncateName(name),
		status:       Running,
		basePriority: clampPriority(priority),
		resume:       make(chan *Thread, 1),
		magic:        magic,
	}
	k.all[main.tid] = main
	k.current = main
	k.initial = main
	return k
}

func clampPriority(p int) int {
	if p < PriMin {
		return PriMin
	}
	if p > PriMax {
		return PriMax
	}
	return p
}

// Start creates the idle thread at minimum priority, enables interrupts
// for the first time in the boot sequence, and blocks the calling thread
// until idle's first dispatch hands control back, per spec.md §4.1/§4.2.
//
// The handshake is not a bare Go channel: it runs entirely through
// Block/Unblock/schedule like any other wakeup, because a raw channel
// receive would let the caller's goroutine go idle without ever passing
// through the scheduler, leaving next_to_run() unaware the CPU is free
// and the idle thread's trampoline never dispatched.
//
// intr.Enable here is the unconditional boot-time enable, not a
// save/restore bracket: Init's precondition leaves interrupts OFF with no
// matching earlier Disable to restore to, exactly as real hardware boots
// with interrupts masked until the kernel explicitly unmasks them.
// Everything after this point uses the nested-safe Disable/SetLevel
// pattern instead.
func (k *Kernel) Start() {
	waiter := k.current
	_, err := k.Create("idle", PriMin, func(aux any) {
		k.idleLoop(aux.(*Thread))
	}, waiter)
	if err != nil {
		klog.Fatalf(nil, "thread: failed to create idle thread: %v", err)
	}
	k.started = true
	intr.Enable()
	old := intr.Disable()
	k.Block()
	intr.SetLevel(old)
}

func (k *Kernel) idleLoop(waiter *Thread) {
	self := k.current
	k.idle = self
	k.Unblock(waiter)
	for {
		old := intr.Disable()
		k.block(self)
		intr.SetLevel(old)
		haltCPU()
	}
}

// haltCPU stands in for the external halt_cpu() collaborator: on real
// hardware this parks the core until the next interrupt. Go's own
// scheduler already parks a goroutine that isn't runnable, so there is
// nothing more to do here; the call remains as a named hook so the
// idle-loop shape matches spec.md §4.2 line for line.
func haltCPU() {}

// Tick is called from the simulated timer-interrupt context
// (kernel/tickdriver) once the driver holds interrupts disabled and has
// entered interrupt context. It returns true if the interrupt dispatcher
// should request a yield-on-return (spec.md §4.1's TIME_SLICE rule).
//
// Go gives the tick driver no way to forcibly interrupt the goroutine
// backing whichever thread is RUNNING — there is no raw instruction
// pointer to hijack, unlike real hardware. So "yield-on-return" is
// realized cooperatively: Tick latches the request in preemptPending,
// and it takes effect the next time the running thread's own code
// reaches a preemption point and calls ConsumePreemptRequest (see
// kernel/workload's per-step ticket hand-off). This is the same
// baton-model constraint that shapes the rest of this package, applied
// to preemption specifically.
func (k *Kernel) Tick() (yieldOnReturn bool) {
	intr.AssertOff()
	if !intr.InInterruptContext() {
		klog.Fatalf(nil, "thread: Tick called outside interrupt context")
	}
	switch {
	case k.current == k.idle:
		k.idleTicks++
		k.met.Tick("idle")
	case k.current == k.initial:
		k.kernelTicks++
		k.met.Tick("kernel")
	default:
		k.userTicks++
		k.met.Tick("user")
	}
	k.sliceTicks++
	k.wakeSleepers()
	yieldOnReturn = k.sliceTicks >= TimeSlice
	if yieldOnReturn {
		k.preemptPending = true
	}
	return yieldOnReturn
}

// ConsumePreemptRequest reports and clears a pending tick-driven
// preemption request. Called by the currently running thread's own code
// at a safe point (kernel/workload's per-step ticket hand-off); if
// true, the caller should call Yield.
func (k *Kernel) ConsumePreemptRequest() bool {
	old := intr.Disable()
	defer intr.SetLevel(old)
	pending := k.preemptPending
	k.preemptPending = false
	return pending
}

// TickCounts returns the accumulated idle/kernel/user tick counters from
// spec.md §4.1.
func (k *Kernel) TickCounts() (idleT, kernelT, userT int64) {
	return k.idleTicks, k.kernelTicks, k.userTicks
}

// SetMLFQS carries the -o mlfqs flag (spec.md §6): it is recorded but
// never interpreted, matching the explicit Non-goal that the
// multi-level feedback queue scheduler is unimplemented.
func (k *Kernel) SetMLFQS(v bool) { k.mlfqs = v }

// MLFQS reports the carried flag.
func (k *Kernel) MLFQS() bool { return k.mlfqs }

// GetNiceLoadAvgRecentCPU returns the three MLFQS-only readings, each
// fixed at 0 because MLFQS is not implemented, per spec.md §6.
func (k *Kernel) GetNiceLoadAvgRecentCPU() (nice, loadAvg, recentCPU int) {
	return 0, 0, 0
}

// Current returns the thread whose goroutine is presently dispatched.
func (k *Kernel) Current() *Thread {
	return k.current
}

// SetRecorder attaches a trace recorder that observes every context
// switch and unblock from this point on. Passing nil restores the
// zero-overhead default. Intended to be called once, right after Init,
// before any thread besides main exists.
func (k *Kernel) SetRecorder(r trace.Recorder) {
	if r == nil {
		r = trace.Nop
	}
	k.rec = r
}

// SetMetrics attaches an OpenTelemetry-backed (or test) metrics recorder.
// Passing nil restores the zero-overhead default. Same one-time-after-Init
// contract as SetRecorder.
func (k *Kernel) SetMetrics(m metrics.Recorder) {
	if m == nil {
		m = metrics.Nop
	}
	k.met = m
}

// Metrics returns the attached metrics recorder, for kernel/sync/lock and
// kernel/sync/semaphore to report donation events and wait durations
// without importing kernel/thread's internals.
func (k *Kernel) Metrics() metrics.Recorder {
	return k.met
}

// RunID identifies this Kernel instance across a process's lifetime,
// stamped once at Init. kernel/debugsvc reports it alongside a thread
// table snapshot so a client polling across a scheduler restart (a new
// process, a fresh state file) can tell the runs apart instead of
// silently stitching two unrelated thread tables together.
func (k *Kernel) RunID() string {
	return k.runID.String()
}

// Create allocates a thread record, registers it, and unblocks it so it
// competes for the CPU; then, once Start has run, yields so a newly
// created higher-priority thread preempts immediately, per spec.md §4.1.
// Before Start it only enqueues the new thread.
func (k *Kernel) Create(name string, priority int, entry func(aux any), aux any) (*Thread, error) {
	if entry == nil {
		return nil, fmt.Errorf("thread: Create: entry must not be nil")
	}
	if priority < PriMin || priority > PriMax {
		return nil, fmt.Errorf("thread: Create: priority %d out of [%d,%d]", priority, PriMin, PriMax)
	}
	if !k.arena.alloc() {
		return nil, ErrNoFreePage
	}
	t := &Thread{
		tid:          k.tids.allocate(),
		name:         truncateName(name),
		status:       Blocked,
		basePriority: priority,
		resume:       make(chan *Thread, 1),
		entry:        entry,
		aux:          aux,
		magic:        magic,
	}

	old := intr.Disable()
	k.all[t.tid] = t
	intr.SetLevel(old)

	go k.trampoline(t)

	k.Unblock(t)
	if k.started {
		k.Yield()
	}
	return t, nil
}

// trampoline is the goroutine backing a created thread. It waits for its
// first dispatch, finishes the switch on the new thread's behalf exactly
// as schedule_tail would, then — mirroring the pushed initial stack frame
// in spec.md §4.1 — enables interrupts and calls the thread's entry
// point, invoking Exit on return.
func (k *Kernel) trampoline(t *Thread) {
	prev := <-t.resume
	k.finishSwitch(t, prev)
	intr.Enable()
	t.entry(t.aux)
	k.Exit()
}

// Block marks the calling thread BLOCKED and reschedules. The caller
// must already have recorded itself on whatever wait queue will later
// unblock it. Precondition: interrupts OFF, not in interrupt context.
func (k *Kernel) Block() {
	if intr.InInterruptContext() {
		klog.Fatalf(k.current, "thread: Block called from interrupt context")
	}
	intr.AssertOff()
	k.block(k.current)
}

func (k *Kernel) block(t *Thread) {
	t.mu.Lock()
	t.status = Blocked
	t.mu.Unlock()
	k.schedule(t)
}

// Unblock places t on the ready queue and marks it READY. Safe from
// interrupt context; disables interrupts internally.
func (k *Kernel) Unblock(t *Thread) {
	old := intr.Disable()
	defer intr.SetLevel(old)
	t.checkMagic()
	t.mu.Lock()
	status := t.status
	t.mu.Unlock()
	if status != Blocked {
		klog.Fatalf(t, "thread: Unblock called on thread with status %s, want BLOCKED", status)
	}
	t.mu.Lock()
	t.status = Ready
	t.mu.Unlock()
	k.ready.push(t)
	k.rec.Record(trace.Event{
		Tick: k.ticks(), Kind: trace.Unblock,
		Tid: t.tid, Name: t.name, Priority: t.EffectivePriority(),
	})
}

// Yield gives up the CPU voluntarily. Disallowed from interrupt context.
//
// This disables interrupts itself and restores the level only after
// schedule() returns — and because schedule() may park this goroutine
// for an arbitrary time before resuming it, "after schedule() returns"
// happens in this same goroutine's stack frame once some future
// reschedule hands the baton back here. The level restored is therefore
// always this call's own saved level, never whatever level happened to
// be in effect in the thread that last held the CPU — see spec.md §9
// Open Question 1.
func (k *Kernel) Yield() {
	if intr.InInterruptContext() {
		klog.Fatalf(k.current, "thread: Yield called from interrupt context")
	}
	old := intr.Disable()
	self := k.current
	if self != k.idle {
		self.mu.Lock()
		self.status = Ready
		self.mu.Unlock()
		k.ready.push(self)
	}
	k.schedule(self)
	intr.SetLevel(old)
}

// Exit marks the calling thread DYING, removes it from the thread table,
// and reschedules. Never returns.
func (k *Kernel) Exit() {
	if intr.InInterruptContext() {
		klog.Fatalf(k.current, "thread: Exit called from interrupt context")
	}
	intr.Disable()
	self := k.current
	self.mu.Lock()
	self.status = Dying
	self.mu.Unlock()
	delete(k.all, self.tid)
	k.schedule(self)
	klog.Fatalf(self, "thread: Exit: schedule() returned")
}

// ForEach applies f to every live thread with interrupts disabled, per
// spec.md §4.1/§6.
func (k *Kernel) ForEach(f func(*Thread)) {
	old := intr.Disable()
	defer intr.SetLevel(old)
	for _, t := range k.all {
		f(t)
	}
}

// SetPriority updates the calling thread's base priority and yields,
// since it may no longer be the highest-priority runnable thread.
func (k *Kernel) SetPriority(p int) {
	p = clampPriority(p)
	old := intr.Disable()
	self := k.current
	self.mu.Lock()
	self.basePriority = p
	self.mu.Unlock()
	intr.SetLevel(old)
	k.Yield()
}

// GetPriority returns the calling thread's effective priority.
func (k *Kernel) GetPriority() int {
	return k.current.EffectivePriority()
}

// Lookup returns the live thread with the given tid, for kernel/debugsvc's
// GetPriority/SetPriority RPCs, which target an arbitrary tid rather than
// the calling thread.
func (k *Kernel) Lookup(tid int) (*Thread, bool) {
	old := intr.Disable()
	defer intr.SetLevel(old)
	t, ok := k.all[tid]
	return t, ok
}

// SetThreadPriority sets t's base priority directly and re-buckets it in
// the ready queue if needed. Unlike SetPriority, this can target any live
// thread, not just the caller, and does not yield afterward: a debugger
// poking another thread's priority should not perturb the calling
// goroutine's own scheduling. Intended for kernel/debugsvc; ordinary
// scheduler code should go through SetPriority instead (spec.md §4.6).
func (k *Kernel) SetThreadPriority(t *Thread, p int) {
	p = clampPriority(p)
	old := intr.Disable()
	defer intr.SetLevel(old)
	t.mu.Lock()
	t.basePriority = p
	t.mu.Unlock()
	k.ready.reprioritize(t)
}

// Trace forwards e to the attached recorder, stamping the current tick.
// Exported so kernel/sync/lock can record donation raise/restore events
// without kernel/trace needing to know about locks at all.
func (k *Kernel) Trace(e trace.Event) {
	e.Tick = k.ticks()
	k.rec.Record(e)
}

// Reprioritize re-buckets t in the ready queue if it is currently READY,
// so a donation raise is reflected immediately. Precondition: interrupts
// OFF; called by kernel/sync/lock's propagate step.
func (k *Kernel) Reprioritize(t *Thread) {
	intr.AssertOff()
	k.ready.reprioritize(t)
}

// nextToRun implements spec.md §4.1's next_to_run(): the highest
// effective priority ready thread, or the idle thread if none.
func (k *Kernel) nextToRun() *Thread {
	if t := k.ready.popMax(); t != nil {
		return t
	}
	return k.idle
}

// schedule implements spec.md §4.1's schedule() contract. self is the
// thread invoking it (already transitioned to its new non-RUNNING status
// by the caller, or still RUNNING if this is a plain voluntary
// reschedule check). Precondition: interrupts OFF.
func (k *Kernel) schedule(self *Thread) {
	intr.AssertOff()
	next := k.nextToRun()
	if next == self {
		k.finishSwitch(self, nil)
		return
	}
	k.rec.Record(trace.Event{
		Tick: k.ticks(), Kind: trace.ContextSwitch,
		Tid: self.tid, Name: self.name,
		OtherTid: next.tid, OtherName: next.name, Priority: next.EffectivePriority(),
	})
	k.met.ContextSwitch(self.name, next.name, next.EffectivePriority())
	next.resume <- self
	prev := <-self.resume
	k.finishSwitch(self, prev)
}

// finishSwitch is schedule_tail: the thread now dispatched (self) marks
// itself RUNNING, the slice counter resets, and prev's arena slot is
// freed if prev is DYING and not the initial thread.
func (k *Kernel) finishSwitch(self *Thread, prev *Thread) {
	self.checkMagic()
	self.mu.Lock()
	self.status = Running
	self.mu.Unlock()
	k.current = self
	k.sliceTicks = 0
	if prev != nil {
		prev.mu.Lock()
		dying := prev.status == Dying
		prev.mu.Unlock()
		if dying && prev != k.initial {
			k.arena.free()
		}
	}
}
