// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package debugsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName must match debugsvc.proto's service name; every method
// path below is "/" + serviceName + "/" + <rpc name>, the same scheme
// protoc-gen-go-grpc emits.
const serviceName = "kernelsched.debugsvc.SchedulerDebug"

// Server is the SchedulerDebug service contract. debugsvc.proto's
// well-known-type bodies mean this can be hand-written directly against
// google.golang.org/protobuf/types/known/* rather than through generated
// .pb.go stubs; ServiceDesc below wires it into grpc exactly the way
// protoc-gen-go-grpc's generated RegisterXxxServer would.
type Server interface {
	ListThreads(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetPriority(context.Context, *wrapperspb.Int32Value) (*wrapperspb.Int32Value, error)
	SetPriority(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	DumpTrace(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// RegisterSchedulerDebugServer registers srv on s, mirroring generated
// code's RegisterSchedulerDebugServer.
func RegisterSchedulerDebugServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListThreads", Handler: listThreadsHandler},
		{MethodName: "GetPriority", Handler: getPriorityHandler},
		{MethodName: "SetPriority", Handler: setPriorityHandler},
		{MethodName: "DumpTrace", Handler: dumpTraceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kernel/debugsvc/debugsvc.proto",
}

func listThreadsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ListThreads(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListThreads"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).ListThreads(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getPriorityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).GetPriority(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetPriority"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).GetPriority(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func setPriorityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).SetPriority(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SetPriority"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).SetPriority(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func dumpTraceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).DumpTrace(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DumpTrace"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).DumpTrace(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is the SchedulerDebug client stub, hand-written in the same
// shape protoc-gen-go-grpc emits for unary-only services.
type Client interface {
	ListThreads(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetPriority(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*wrapperspb.Int32Value, error)
	SetPriority(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	DumpTrace(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type client struct {
	cc grpc.ClientConnInterface
}

// NewSchedulerDebugClient wraps cc as a Client.
func NewSchedulerDebugClient(cc grpc.ClientConnInterface) Client {
	return &client{cc: cc}
}

func (c *client) ListThreads(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ListThreads", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) GetPriority(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*wrapperspb.Int32Value, error) {
	out := new(wrapperspb.Int32Value)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetPriority", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) SetPriority(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SetPriority", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) DumpTrace(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/DumpTrace", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
