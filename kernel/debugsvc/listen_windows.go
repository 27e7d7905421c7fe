// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build windows

package debugsvc

import (
	"fmt"
	"net"
	"os"

	"github.com/Microsoft/go-winio"
)

// listen returns a Windows named pipe listener, scoped to the caller's
// PID so two scheduler processes never collide, and the pipe path a
// grpc client should dial to reach it. stateDir is unused here (the pipe
// namespace is already process-scoped) but kept in the signature so
// debugsvc.go's call site is platform-independent.
func listen(stateDir string) (net.Listener, string, error) {
	path := fmt.Sprintf(`\\.\pipe\sched-%d`, os.Getpid())
	lis, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("listen pipe %s: %w", path, err)
	}
	return lis, path, nil
}
