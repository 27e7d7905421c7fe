// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package debugsvc exposes a running *thread.Kernel's thread table over
// gRPC, the RPC analogue of spec.md §6's thread_foreach/debug hooks: ps
// and trace connect to it instead of polling through a file, the way
// the teacher's subcmd/ps/local.go polls a siso build's HTTP debug
// endpoint discovered through a ".siso_port" state file.
package debugsvc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.kernelsched.dev/sched/kernel/thread"
	"go.kernelsched.dev/sched/kernel/trace"
	"go.kernelsched.dev/sched/o11y/klog"
)

// StateFileName is the discovery file ps/trace read to find a running
// debug service's socket address, the local equivalent of the teacher's
// ".siso_port".
const StateFileName = ".sched_addr"

// Service implements Server against one *thread.Kernel.
type Service struct {
	k    *thread.Kernel
	ring *trace.Ring
}

// New wraps k as a debug service.
func New(k *thread.Kernel) *Service {
	return &Service{k: k}
}

// AttachRing arms DumpTrace against r. Without it, DumpTrace reports
// FailedPrecondition -- the same way a scheduler run with no -trace
// recorder attached has nothing for subcmd/trace to pull.
func (s *Service) AttachRing(r *trace.Ring) {
	s.ring = r
}

// ListThreads snapshots every live thread, per spec.md §6's
// thread_foreach contract: taken with interrupts disabled, via
// kernel/thread.Kernel.ForEach.
func (s *Service) ListThreads(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	var threads []*structpb.Value
	s.k.ForEach(func(t *thread.Thread) {
		owned := make([]any, 0, len(t.OwnedLocks()))
		for _, l := range t.OwnedLocks() {
			owned = append(owned, l.Name())
		}
		blockedOn := ""
		if b := t.BlockedOn(); b != nil {
			blockedOn = b.Name()
		}
		st, err := structpb.NewStruct(map[string]any{
			"tid":                float64(t.Tid()),
			"name":               t.Name(),
			"status":             t.Status().String(),
			"base_priority":      float64(t.BasePriority()),
			"donated_priority":   float64(t.DonatedPriority()),
			"effective_priority": float64(t.EffectivePriority()),
			"owned_locks":        owned,
			"blocked_on":         blockedOn,
		})
		if err != nil {
			klog.Errorf(t, "debugsvc: ListThreads: marshal: %v", err)
			return
		}
		threads = append(threads, structpb.NewStructValue(st))
	})
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"run_id":  structpb.NewStringValue(s.k.RunID()),
			"threads": structpb.NewListValue(&structpb.ListValue{Values: threads}),
		},
	}, nil
}

// GetPriority returns the effective priority of the thread with the
// given tid.
func (s *Service) GetPriority(ctx context.Context, tid *wrapperspb.Int32Value) (*wrapperspb.Int32Value, error) {
	t, ok := s.k.Lookup(int(tid.GetValue()))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no thread with tid %d", tid.GetValue())
	}
	return wrapperspb.Int32(int32(t.EffectivePriority())), nil
}

// SetPriority sets the base priority of the thread named by req's "tid"
// field to req's "priority" field. Unlike kernel/thread.Kernel.SetPriority
// (which only ever targets the calling thread, per spec.md §4.6), this
// RPC can retarget any live thread by tid -- a debugging affordance the
// in-kernel API deliberately does not offer.
func (s *Service) SetPriority(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	tidF, ok := req.GetFields()["tid"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, `SetPriority: missing "tid" field`)
	}
	prioF, ok := req.GetFields()["priority"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, `SetPriority: missing "priority" field`)
	}
	tid := int(tidF.GetNumberValue())
	t, ok := s.k.Lookup(tid)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no thread with tid %d", tid)
	}
	s.k.SetThreadPriority(t, int(prioF.GetNumberValue()))
	return &emptypb.Empty{}, nil
}

// DumpTrace drains the attached trace recorder as zstd-compressed JSON
// Lines, the RPC subcmd/trace's "dump" verb calls instead of reading a
// local -trace file, so it can pull a scheduling history off a scheduler
// that is still running. Returns FailedPrecondition if the run was
// started without a recorder attached (see AttachRing).
func (s *Service) DumpTrace(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	if s.ring == nil {
		return nil, status.Error(codes.FailedPrecondition, "debugsvc: no trace recorder attached to this run")
	}
	var buf bytes.Buffer
	if err := s.ring.Dump(&buf); err != nil {
		return nil, status.Errorf(codes.Internal, "debugsvc: dump trace: %v", err)
	}
	return wrapperspb.Bytes(buf.Bytes()), nil
}

// Serve registers svc on a fresh grpc.Server listening on a fresh
// platform listener (see listen_unix.go/listen_windows.go), writes the
// listener's address to stateDir/StateFileName for ps/trace to discover,
// and serves until ctx is done. The state file is removed on return.
func Serve(ctx context.Context, svc *Service, stateDir string) error {
	lis, dialTarget, err := listen(stateDir)
	if err != nil {
		return fmt.Errorf("debugsvc: listen: %w", err)
	}
	statePath := filepath.Join(stateDir, StateFileName)
	if err := os.WriteFile(statePath, []byte(dialTarget+"\n"), 0o644); err != nil {
		lis.Close()
		return fmt.Errorf("debugsvc: writing state file: %w", err)
	}
	defer os.Remove(statePath)

	klog.Infof(nil, "debugsvc: run %s serving on %s", svc.k.RunID(), dialTarget)
	srv := grpc.NewServer()
	RegisterSchedulerDebugServer(srv, svc)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return srv.Serve(lis)
}

// DialAddr reads stateDir/StateFileName and returns the address ps/trace
// should dial, mirroring local.go's ".siso_port" read.
func DialAddr(stateDir string) (string, error) {
	buf, err := os.ReadFile(filepath.Join(stateDir, StateFileName))
	if err != nil {
		return "", fmt.Errorf("debugsvc: scheduler not running in %s? %w", stateDir, err)
	}
	return strings.TrimSpace(string(buf)), nil
}
