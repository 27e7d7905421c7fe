// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package debugsvc_test

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.kernelsched.dev/sched/kernel/debugsvc"
	"go.kernelsched.dev/sched/kernel/intr"
	"go.kernelsched.dev/sched/kernel/sync/lock"
	"go.kernelsched.dev/sched/kernel/sync/semaphore"
	"go.kernelsched.dev/sched/kernel/thread"
)

// startServer wires debugsvc.Service directly into an in-memory grpc
// server over bufconn, skipping the filesystem state-file/socket dance
// Serve does for real processes.
func startServer(t *testing.T, svc *debugsvc.Service) debugsvc.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	debugsvc.RegisterSchedulerDebugServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { cc.Close() })
	return debugsvc.NewSchedulerDebugClient(cc)
}

func TestListThreadsReportsLiveThreads(t *testing.T) {
	intr.Disable()
	k := thread.Init("main", 10, 0)
	k.Start()

	l := lock.New(k, "X")
	gate := semaphore.New(k, "gate", 0)
	_, err := k.Create("holder", 20, func(any) {
		l.Acquire()
		gate.Down()
		l.Release()
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	client := startServer(t, debugsvc.New(k))
	resp, err := client.ListThreads(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	threads := resp.GetFields()["threads"].GetListValue().GetValues()
	if len(threads) < 2 { // at least main and holder (idle too, once created)
		t.Fatalf("ListThreads returned %d threads; want at least 2", len(threads))
	}

	var sawHolder bool
	for _, v := range threads {
		f := v.GetStructValue().GetFields()
		if f["name"].GetStringValue() == "holder" {
			sawHolder = true
			if got := f["owned_locks"].GetListValue().GetValues(); len(got) != 1 || got[0].GetStringValue() != "X" {
				t.Errorf("holder.owned_locks = %v; want [X]", got)
			}
		}
	}
	if !sawHolder {
		t.Fatal("ListThreads response did not include the \"holder\" thread")
	}
	gate.Up()
}

func TestGetSetPriorityRoundTrip(t *testing.T) {
	intr.Disable()
	k := thread.Init("main", 10, 0)
	k.Start()

	done := semaphore.New(k, "done", 0)
	target, err := k.Create("target", 15, func(any) { done.Down() }, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	client := startServer(t, debugsvc.New(k))
	ctx := context.Background()

	got, err := client.GetPriority(ctx, wrapperspb.Int32(int32(target.Tid())))
	if err != nil {
		t.Fatalf("GetPriority: %v", err)
	}
	if got.GetValue() != 15 {
		t.Fatalf("GetPriority = %d; want 15", got.GetValue())
	}

	req, err := structpb.NewStruct(map[string]any{
		"tid":      float64(target.Tid()),
		"priority": float64(45),
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	if _, err := client.SetPriority(ctx, req); err != nil {
		t.Fatalf("SetPriority: %v", err)
	}

	got, err = client.GetPriority(ctx, wrapperspb.Int32(int32(target.Tid())))
	if err != nil {
		t.Fatalf("GetPriority: %v", err)
	}
	if got.GetValue() != 45 {
		t.Fatalf("GetPriority after SetPriority = %d; want 45", got.GetValue())
	}
	done.Up()
}

func TestGetPriorityUnknownTid(t *testing.T) {
	intr.Disable()
	k := thread.Init("main", 10, 0)
	k.Start()

	client := startServer(t, debugsvc.New(k))
	if _, err := client.GetPriority(context.Background(), wrapperspb.Int32(99999)); err == nil {
		t.Fatal("GetPriority on an unknown tid succeeded; want error")
	}
}
