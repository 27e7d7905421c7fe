// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !windows

package debugsvc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// socketName is the Unix domain socket path, colocated with the state
// file so both are cleaned up by the same stateDir.
const socketName = ".sched.sock"

// listen returns a Unix domain socket listener under stateDir and the
// "unix:<path>" target a grpc client should dial to reach it.
func listen(stateDir string) (net.Listener, string, error) {
	path := filepath.Join(stateDir, socketName)
	os.Remove(path) // stale socket from a crashed prior run
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, "", fmt.Errorf("listen unix %s: %w", path, err)
	}
	return lis, "unix:" + path, nil
}
