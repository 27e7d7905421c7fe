// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Version contains version info.
type Version struct {
	Build *debug.BuildInfo
	CPU   cpuid.CPUInfo
}

var (
	once       sync.Once
	currentVer Version
	currentErr error
)

// Current returns current version info, including the host CPU's feature
// set -- useful when reporting why the scheduler's Tick loop ran slower
// or faster than expected on a given machine.
func Current() (Version, error) {
	once.Do(func() {
		buildInfo, ok := debug.ReadBuildInfo()
		if !ok {
			currentErr = fmt.Errorf("cannot read go build info")
		}
		currentVer.Build = buildInfo
		currentVer.CPU = cpuid.CPU
	})
	return currentVer, currentErr
}

// ToolName returns tool's name.
func (v Version) ToolName() string {
	if v.Build != nil {
		return "sched " + v.Build.Main.Path
	}
	return "sched"
}

// ToolVersion returns tool's version.
func (v Version) ToolVersion() string {
	if v.Build != nil {
		return v.Build.Main.Version
	}
	return "unknown"
}

func (v Version) BuildSettings() map[string]string {
	bs := make(map[string]string)
	if v.Build == nil {
		return bs
	}
	for _, s := range v.Build.Settings {
		if strings.HasPrefix(s.Key, "vcs.") || strings.HasPrefix(s.Key, "-") {
			bs[s.Key] = s.Value
		}
	}
	return bs
}

// CPUSummary reports the host CPU brand and logical core count -- worth
// surfacing alongside the scheduler's own thread count when diagnosing
// Tick jitter on a given host.
func (v Version) CPUSummary() string {
	return fmt.Sprintf("%s (%d logical CPUs, family %d model %d)",
		v.CPU.BrandName, v.CPU.LogicalCores, v.CPU.Family, v.CPU.Model)
}
