// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tickdriver_test

import (
	"context"
	"testing"
	"time"

	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/kernel/tickdriver"
)

func TestRunLatchesPreemptRequestAfterATimeSlice(t *testing.T) {
	intr.Disable()
	k := thread.Init("main", thread.PriMax/2, 0)
	k.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := tickdriver.New(k, 1000) // far more than TimeSlice ticks in 50ms
	if err := d.Run(ctx); err != ctx.Err() {
		t.Fatalf("Run() = %v; want %v", err, ctx.Err())
	}

	if !k.ConsumePreemptRequest() {
		t.Fatal("ConsumePreemptRequest() = false after the driver ran well past a full time slice; want true")
	}
	if k.ConsumePreemptRequest() {
		t.Fatal("ConsumePreemptRequest() = true on second call; want it cleared by the first")
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	intr.Disable()
	k := thread.Init("main", thread.PriMax/2, 0)
	k.Start()

	ctx, cancel := context.WithCancel(context.Background())
	d := tickdriver.New(k, 50)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run() = %v; want %v", err, context.Canceled)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after ctx was cancelled")
	}
}
