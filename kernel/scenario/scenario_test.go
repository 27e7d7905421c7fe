// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package scenario_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.kernelsched.dev/sched/kernel/scenario"
)

func TestAllCoversEveryNamedScenario(t *testing.T) {
	var got []string
	for _, s := range scenario.All {
		got = append(got, s.Name)
	}
	want := []string{
		"strict-priority",
		"simple-donation",
		"nested-donation",
		"multiple-donations",
		"cond-priority-order",
		"semaphore-wake-order",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scenario.All names (-want +got):\n%s", diff)
	}
}

func TestRunAll(t *testing.T) {
	if err := scenario.RunAll(context.Background()); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
}

func TestEachScenarioIndividually(t *testing.T) {
	for _, s := range scenario.All {
		t.Run(s.Name, func(t *testing.T) {
			if err := s.Run(context.Background()); err != nil {
				t.Fatalf("%s: %v", s.Name, err)
			}
		})
	}
}
