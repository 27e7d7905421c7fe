// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package klog is a thin wrapper over glog, in the same spirit as the
// siso o11y/clog package: it exists so kernel packages never import
// github.com/golang/glog directly, and so a thread's identity can be
// attached to every line without every call site repeating it.
package klog

import (
	"fmt"

	log "github.com/golang/glog"
)

// Identer is implemented by anything that can describe itself for a log
// line — kernel/thread.Thread satisfies it without klog needing to import
// the thread package (which would create an import cycle, since
// kernel/thread itself logs through klog).
type Identer interface {
	LogIdent() string
}

// Infof logs an informational line, optionally prefixed with t's identity.
func Infof(t Identer, format string, args ...any) {
	log.InfoDepth(1, ident(t)+fmt.Sprintf(format, args...))
}

// Errorf logs an error line, optionally prefixed with t's identity.
func Errorf(t Identer, format string, args ...any) {
	log.ErrorDepth(1, ident(t)+fmt.Sprintf(format, args...))
}

// Fatalf logs a fatal contract-violation line and halts the process, the
// Go-native equivalent of PANIC()-then-halt in the original kernel: a
// contract violation is undefined behavior, not a recoverable error.
func Fatalf(t Identer, format string, args ...any) {
	log.FatalDepth(1, ident(t)+fmt.Sprintf(format, args...))
}

func ident(t Identer) string {
	if t == nil {
		return ""
	}
	return "[" + t.LogIdent() + "] "
}
