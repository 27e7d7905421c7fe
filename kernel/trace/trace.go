// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace records scheduling events into a bounded ring buffer for
// offline study, the same role the teacher's own -trace/-cpuprofile
// flags play for go tool trace/pprof: dump what happened, after the
// fact, rather than stream it live.
package trace

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Kind identifies the scheduling event a Recorder was told about.
type Kind string

const (
	ContextSwitch    Kind = "context_switch"
	Block            Kind = "block"
	Unblock          Kind = "unblock"
	DonationRaise    Kind = "donation_raise"
	DonationRestore  Kind = "donation_restore"
)

// Event is one JSON-Lines-serializable record.
type Event struct {
	Seq       uint64 `json:"seq"`
	Tick      int64  `json:"tick"`
	Kind      Kind   `json:"kind"`
	Tid       int    `json:"tid"`
	Name      string `json:"name"`
	Priority  int    `json:"priority,omitempty"`
	OtherTid  int    `json:"other_tid,omitempty"`
	OtherName string `json:"other_name,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Recorder is implemented by anything that wants to observe scheduling
// events. kernel/thread.Kernel holds a Recorder field that defaults to
// Nop (kernel/sync/lock records through Kernel.Trace), so the hot
// reschedule path costs nothing when no trace is attached.
type Recorder interface {
	Record(Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}

// Nop is the zero-overhead default Recorder.
var Nop Recorder = nopRecorder{}

// Ring is a fixed-capacity, overwrite-oldest ring buffer of Events. It is
// the Recorder implementation attached when a run is started with
// tracing enabled (subcmd/run's -trace or -state_dir).
type Ring struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
	seq  uint64
}

// NewRing returns a Ring that holds at most capacity events, discarding
// the oldest once full.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Ring{buf: make([]Event, capacity)}
}

// Record implements Recorder.
func (r *Ring) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.Seq = r.seq
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Events returns a copy of the buffered events in chronological order.
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Event, len(r.buf))
	n := copy(out, r.buf[r.next:])
	copy(out[n:], r.buf[:r.next])
	return out
}

// Dump writes every buffered event to w as zstd-compressed JSON Lines,
// one Event per line, oldest first.
func (r *Ring) Dump(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	defer zw.Close()
	bw := bufio.NewWriter(zw)
	enc := json.NewEncoder(bw)
	for _, e := range r.Events() {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return bw.Flush()
}
