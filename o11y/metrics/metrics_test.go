// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package metrics_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"go.kernelsched.dev/sched/o11y/metrics"
)

func TestNopRecorderDoesNotPanic(t *testing.T) {
	metrics.Nop.ContextSwitch("a", "b", 31)
	metrics.Nop.Tick("user")
	metrics.Nop.Donation("raise", 1, 40)
	metrics.Nop.WaitDuration("semaphore", 5*time.Millisecond)
}

func TestOTelRecorderExportsInstruments(t *testing.T) {
	reader, mp := metrics.NewManualReader()
	defer mp.Shutdown(context.Background())

	r, err := metrics.NewOTel(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewOTel: %v", err)
	}

	r.ContextSwitch("idle", "L", 20)
	r.Tick("kernel")
	r.Donation("raise", 7, 40)
	r.WaitDuration("lock", 2*time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			seen[m.Name] = true
		}
	}
	for _, want := range []string{
		"scheduler.context_switch.count",
		"scheduler.tick.count",
		"scheduler.donation.count",
		"scheduler.wait.duration",
	} {
		if !seen[want] {
			t.Errorf("Collect: missing instrument %q", want)
		}
	}
}
