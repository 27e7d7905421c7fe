// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ps

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"go.kernelsched.dev/sched/kernel/debugsvc"
)

// threadRow is one row of the thread table, decoded from a
// debugsvc.ListThreads response.
type threadRow struct {
	tid        int
	name       string
	status     string
	base       int
	donated    int
	effective  int
	ownedLocks []string
	blockedOn  string
}

func decodeThreads(fields map[string]any) []threadRow {
	raw, _ := fields["threads"].([]any)
	rows := make([]threadRow, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		r := threadRow{
			tid:       int(numberField(m, "tid")),
			name:      stringField(m, "name"),
			status:    stringField(m, "status"),
			base:      int(numberField(m, "base_priority")),
			donated:   int(numberField(m, "donated_priority")),
			effective: int(numberField(m, "effective_priority")),
			blockedOn: stringField(m, "blocked_on"),
		}
		if owned, ok := m["owned_locks"].([]any); ok {
			for _, l := range owned {
				if s, ok := l.(string); ok {
					r.ownedLocks = append(r.ownedLocks, s)
				}
			}
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].tid < rows[j].tid })
	return rows
}

func numberField(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// source fetches the current thread table of a running scheduler.
type source interface {
	location() string
	fetch(context.Context) ([]threadRow, error)
	close()
}

type debugSource struct {
	stateDir string
	addr     string
	cc       *grpc.ClientConn
	client   debugsvc.Client
	runID    string
}

func newDebugSource(stateDir string) (*debugSource, error) {
	addr, err := debugsvc.DialAddr(stateDir)
	if err != nil {
		return nil, err
	}
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("ps: dial %s: %w", addr, err)
	}
	return &debugSource{
		stateDir: stateDir,
		addr:     addr,
		cc:       cc,
		client:   debugsvc.NewSchedulerDebugClient(cc),
	}, nil
}

func (s *debugSource) location() string {
	if s.runID == "" {
		return s.addr
	}
	return fmt.Sprintf("%s (run %s)", s.addr, s.runID)
}

func (s *debugSource) fetch(ctx context.Context) ([]threadRow, error) {
	resp, err := s.client.ListThreads(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("ps: ListThreads: %w", err)
	}
	fields := make(map[string]any, len(resp.GetFields()))
	for k, v := range resp.GetFields() {
		fields[k] = v.AsInterface()
	}
	s.runID = stringField(fields, "run_id")
	return decodeThreads(fields), nil
}

func (s *debugSource) close() { s.cc.Close() }
