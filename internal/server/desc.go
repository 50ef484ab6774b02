package server

import (
	"context"

	"google.golang.org/grpc"
)

// Unary builds a method descriptor around a typed handler so services can be
// registered without generated stubs.
func Unary[Req, Resp any](service, method string, fn func(context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(ctx, in)
			}
			info := &grpc.UnaryServerInfo{FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(ctx, req.(*Req))
			})
		},
	}
}

// Sender is the typed send side of a server stream.
type Sender[Resp any] interface {
	Send(*Resp) error
	Context() context.Context
}

type sender[Resp any] struct {
	grpc.ServerStream
}

func (s sender[Resp]) Send(m *Resp) error { return s.SendMsg(m) }

// ServerStream builds a server-streaming descriptor: one request in, many responses out.
func ServerStream[Req, Resp any](method string, fn func(*Req, Sender[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(_ any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return fn(in, sender[Resp]{stream})
		},
	}
}

// ServiceDesc assembles a descriptor whose handlers are closures, so no
// concrete server type has to be checked at registration.
func ServiceDesc(name string, methods []grpc.MethodDesc, streams ...grpc.StreamDesc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     streams,
		Metadata:    name,
	}
}
