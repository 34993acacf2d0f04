// Package api exposes the messaging core over gRPC on the session's Unix
// socket. The service descriptor is declared by hand over protobuf
// well-known types, so no generated code is needed on either side.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "detox.v1.MessagingService"

// Method names.
const (
	MethodGetStatus         = "GetStatus"
	MethodListContacts      = "ListContacts"
	MethodOpenConversation  = "OpenConversation"
	MethodCloseConversation = "CloseConversation"
	MethodGetWindow         = "GetWindow"
	MethodSend              = "Send"
	MethodRetry             = "Retry"
	MethodWatchConversation = "WatchConversation"
)

// FullMethod returns the wire path of a method, e.g. "/detox.v1.MessagingService/Send".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// MessagingServer is the server side of the messaging service.
type MessagingServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListContacts(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	OpenConversation(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	CloseConversation(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetWindow(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Send(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Retry(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	WatchConversation(*emptypb.Empty, grpc.ServerStream) error
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv MessagingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the messaging service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetStatus, newEmpty, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.GetStatus(ctx, in.(*emptypb.Empty))
		}),
		unary(MethodListContacts, newString, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.ListContacts(ctx, in.(*wrapperspb.StringValue))
		}),
		unary(MethodOpenConversation, newString, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.OpenConversation(ctx, in.(*wrapperspb.StringValue))
		}),
		unary(MethodCloseConversation, newEmpty, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.CloseConversation(ctx, in.(*emptypb.Empty))
		}),
		unary(MethodGetWindow, newEmpty, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.GetWindow(ctx, in.(*emptypb.Empty))
		}),
		unary(MethodSend, newString, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.Send(ctx, in.(*wrapperspb.StringValue))
		}),
		unary(MethodRetry, newString, func(s MessagingServer, ctx context.Context, in any) (any, error) {
			return s.Retry(ctx, in.(*wrapperspb.StringValue))
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchConversation,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(MessagingServer).WatchConversation(in, stream)
			},
		},
	},
	Metadata: "detox/v1/messaging.proto",
}

func newEmpty() any  { return new(emptypb.Empty) }
func newString() any { return new(wrapperspb.StringValue) }

func unary(name string, newIn func() any, call func(MessagingServer, context.Context, any) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newIn()
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MessagingServer), ctx, req)
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}
