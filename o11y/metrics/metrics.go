// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package metrics defines the OpenTelemetry counters/histograms the
// scheduler core reports through: context switches, ticks by class,
// donation events, and synchronization-primitive wait durations. The
// hot reschedule path calls through the Recorder interface directly
// rather than package-level globals guarded by an enabled() check
// (contrast the teacher's o11y/monitoring.go) so that independent
// kernel/scenario runs never share one process-wide meter.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	smetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder receives scheduler telemetry. Every method must be cheap and
// safe to call with interrupts disabled; implementations must not block.
type Recorder interface {
	// ContextSwitch records a dispatch away from "from" to "to", the
	// latter's effective priority at the moment it was picked.
	ContextSwitch(from, to string, toPriority int)
	// Tick records one timer tick attributed to a thread class: "idle",
	// "kernel", or "user", per spec.md §4.1.
	Tick(class string)
	// Donation records a priority-donation raise or restore. kind is
	// "raise" or "restore".
	Donation(kind string, tid int, priority int)
	// WaitDuration records how long a thread blocked in a synchronization
	// primitive before being woken. primitive is "semaphore", "lock", or
	// "cond".
	WaitDuration(primitive string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ContextSwitch(string, string, int)  {}
func (nopRecorder) Tick(string)                        {}
func (nopRecorder) Donation(string, int, int)          {}
func (nopRecorder) WaitDuration(string, time.Duration) {}

// Nop is a Recorder that discards everything, at effectively zero cost.
var Nop Recorder = nopRecorder{}

// OTel is a Recorder backed by OpenTelemetry metric instruments, built
// the way the teacher's monitoring.SetupViews builds its counters and
// histograms (Int64Counter/Float64Histogram with WithDescription and
// WithUnit) — just attached to one explicit meter per Recorder instance
// instead of package-level globals set up once for the whole process.
type OTel struct {
	switches  metric.Int64Counter
	ticks     metric.Int64Counter
	donations metric.Int64Counter
	waits     metric.Float64Histogram
}

// NewOTel builds an OTel recorder against meter. Returns an error if any
// instrument fails to register, mirroring the teacher's SetupViews.
func NewOTel(meter metric.Meter) (*OTel, error) {
	var r OTel
	var err error

	r.switches, err = meter.Int64Counter(
		"scheduler.context_switch.count",
		metric.WithDescription("Number of context switches"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		return nil, err
	}
	r.ticks, err = meter.Int64Counter(
		"scheduler.tick.count",
		metric.WithDescription("Number of timer ticks, by thread class"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}
	r.donations, err = meter.Int64Counter(
		"scheduler.donation.count",
		metric.WithDescription("Number of priority donation raises and restores"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	r.waits, err = meter.Float64Histogram(
		"scheduler.wait.duration",
		metric.WithDescription("Time a thread spent blocked in a synchronization primitive"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *OTel) ContextSwitch(from, to string, toPriority int) {
	r.switches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("to", to),
		attribute.Int("to_priority", toPriority),
	))
}

func (r *OTel) Tick(class string) {
	r.ticks.Add(context.Background(), 1, metric.WithAttributes(attribute.String("class", class)))
}

func (r *OTel) Donation(kind string, tid int, priority int) {
	r.donations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Int("priority", priority),
	))
}

func (r *OTel) WaitDuration(primitive string, d time.Duration) {
	r.waits.Record(context.Background(), float64(d)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("primitive", primitive),
	))
}

// NewManualReader is a convenience constructor for tests and the debug
// CLI that want to pull metrics out in-process rather than exporting
// them periodically, wrapping the sdk/metric ManualReader the way the
// teacher wraps a periodic one in NewMetricProvider.
func NewManualReader() (*smetric.ManualReader, *smetric.MeterProvider) {
	reader := smetric.NewManualReader()
	mp := smetric.NewMeterProvider(smetric.WithReader(reader))
	return reader, mp
}
