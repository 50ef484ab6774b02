// Package servertest serves registrars over an in-memory listener.
package servertest

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/moviematch/internal/server"
)

const bufSize = 1 << 20

// Dial starts a server with the given registrars on a bufconn listener and
// returns a client speaking the JSON codec. Both are torn down with the test.
func Dial(t *testing.T, registrars ...server.Registrar) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := server.NewGRPCServer(registrars...)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(server.CodecName)),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Invoke calls a unary method and decodes the reply into a fresh Resp.
func Invoke[Resp any](ctx context.Context, conn *grpc.ClientConn, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream opens a server stream, sends req and closes the send side.
func Stream(ctx context.Context, conn *grpc.ClientConn, method string, req any) (grpc.ClientStream, error) {
	desc := &grpc.StreamDesc{ServerStreams: true}
	cs, err := conn.NewStream(ctx, desc, method)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}
