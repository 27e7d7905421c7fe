// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package thread

import "errors"

// ErrNoFreePage is returned by Create when the thread-record arena is
// exhausted — the Go stand-in for PintOS's alloc_thread_page() returning
// NULL. Per spec.md §7.2, no partial registration occurs: the caller gets
// this error and nothing else changes.
var ErrNoFreePage = errors.New("thread: no free thread-record page")
