package matching

import (
	"google.golang.org/grpc"

	"github.com/oggyb/moviematch/internal/app"
	"github.com/oggyb/moviematch/internal/server"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "moviematch.MatchingService"

// Registrar ties the Matching service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Matching service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Matching service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	svc := NewMatchingService(r.appCtx)
	s.RegisterService(server.ServiceDesc(ServiceName, []grpc.MethodDesc{
		server.Unary(ServiceName, "CreateMatchingSession", svc.CreateMatchingSession),
		server.Unary(ServiceName, "GetRecommendations", svc.GetRecommendations),
		server.Unary(ServiceName, "SubmitFeedback", svc.SubmitFeedback),
		server.Unary(ServiceName, "GetUserPreferences", svc.GetUserPreferences),
		server.Unary(ServiceName, "GetExplanation", svc.GetExplanation),
		server.Unary(ServiceName, "GetSessionStats", svc.GetSessionStats),
		server.Unary(ServiceName, "GetSimilarMovies", svc.GetSimilarMovies),
		server.Unary(ServiceName, "HealthCheck", svc.HealthCheck),
	}), svc)
}
