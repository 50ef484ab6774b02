package session

import (
	"google.golang.org/grpc"

	"github.com/oggyb/moviematch/internal/app"
	"github.com/oggyb/moviematch/internal/server"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "moviematch.SessionService"

// Registrar ties the Session service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Session service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Session service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	svc := NewSessionService(r.appCtx)
	s.RegisterService(Desc(svc), svc)
}

// Desc describes the Session service methods.
func Desc(svc *Service) *grpc.ServiceDesc {
	return server.ServiceDesc(ServiceName,
		[]grpc.MethodDesc{
			server.Unary(ServiceName, "CreateSession", svc.CreateSession),
			server.Unary(ServiceName, "JoinSession", svc.JoinSession),
			server.Unary(ServiceName, "GetSession", svc.GetSession),
			server.Unary(ServiceName, "RecordSwipe", svc.RecordSwipe),
			server.Unary(ServiceName, "SetSmartMatching", svc.SetSmartMatching),
			server.Unary(ServiceName, "LeaveSession", svc.LeaveSession),
			server.Unary(ServiceName, "BootstrapMatching", svc.BootstrapMatching),
			server.Unary(ServiceName, "GetSwipeHistory", svc.GetSwipeHistory),
			server.Unary(ServiceName, "NextMovies", svc.NextMovies),
		},
		server.ServerStream("SubscribeSession", svc.SubscribeSession),
	)
}
