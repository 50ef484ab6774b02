package matching

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"

	"github.com/oggyb/moviematch/internal/app"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/recommend"
	"github.com/oggyb/moviematch/internal/service"
)

const serviceLabel = "moviematch-recommendation"

// Service implements the Matching gRPC API: the recommendation surface a
// pair of clients talks to once their swipe session is bootstrapped.
type Service struct {
	appCtx    *app.AppContext
	engine    *recommend.Engine
	explainer *recommend.ExplanationBuilder
}

// NewMatchingService creates a new Matching service with dependencies from AppContext.
func NewMatchingService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		engine:    appCtx.Engine,
		explainer: appCtx.Explainer,
	}
}

// CreateMatchingSession returns the recommendation session for a pair. The
// order of the two ids does not matter, and asking again for the same pair
// returns the existing id.
func (s *Service) CreateMatchingSession(ctx context.Context, req *CreateMatchingSessionRequest) (*CreateMatchingSessionResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("CreateMatchingSession called", "user1", req.User1ID, "user2", req.User2ID)

	id, err := s.engine.CreateSession(ctx, req.User1ID, req.User2ID)
	switch {
	case errors.Is(err, svcErr.ErrDuplicateSession):
		return &CreateMatchingSessionResponse{SessionID: id, Existing: true}, nil
	case err != nil:
		s.appCtx.Logger.Error("CreateMatchingSession failed", "err", err)
		return nil, svcErr.Map(err)
	}
	return &CreateMatchingSessionResponse{SessionID: id}, nil
}

func (s *Service) GetRecommendations(ctx context.Context, req *GetRecommendationsRequest) (*recommend.Batch, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("GetRecommendations called", "session", req.SessionID, "user", req.UserID, "batch", req.BatchSize)

	batch, err := s.engine.GetRecommendations(ctx, recommend.Request{
		SessionID: req.SessionID,
		BatchSize: req.BatchSize,
		UserID:    req.UserID,
		Exclude:   req.Exclude,
	})
	if err != nil {
		if svcErr.IsFallback(err) {
			s.appCtx.Logger.Warn("GetRecommendations degraded", "session", req.SessionID, "err", err)
		} else {
			s.appCtx.Logger.Error("GetRecommendations failed", "session", req.SessionID, "err", err)
		}
		return nil, svcErr.Map(err)
	}
	return batch, nil
}

// SubmitFeedback applies one like/dislike/skip.
func (s *Service) SubmitFeedback(ctx context.Context, req *SubmitFeedbackRequest) (*SubmitFeedbackResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("SubmitFeedback called", "session", req.SessionID, "user", req.UserID, "movie", req.MovieID, "type", req.FeedbackType)

	res, err := s.engine.SubmitFeedback(ctx, req.SessionID, recommend.Feedback{
		UserID:      req.UserID,
		MovieID:     req.MovieID,
		Type:        recommend.FeedbackType(req.FeedbackType),
		TimeSpentMs: req.TimeSpentMs,
	})
	if err != nil {
		s.appCtx.Logger.Error("SubmitFeedback failed", "session", req.SessionID, "err", err)
		return nil, svcErr.Map(err)
	}

	msg := "Feedback recorded"
	if res.MutualLike {
		msg = "Feedback recorded: it's a match"
	}
	return &SubmitFeedbackResponse{
		Success:           true,
		Message:           msg,
		MutualLike:        res.MutualLike,
		SessionStage:      string(res.Stage),
		TotalInteractions: res.TotalInteractions,
		MutualLikes:       res.MutualLikes,
	}, nil
}

func (s *Service) GetUserPreferences(ctx context.Context, req *GetUserPreferencesRequest) (*recommend.Preferences, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	prefs, err := s.engine.GetUserPreferences(ctx, req.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return prefs, nil
}

func (s *Service) GetExplanation(ctx context.Context, req *GetExplanationRequest) (*recommend.Explanation, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	ex, err := s.explainer.Explain(ctx, req.SessionID, req.MovieID, req.User1ID, req.User2ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return ex, nil
}

func (s *Service) GetSessionStats(ctx context.Context, req *GetSessionStatsRequest) (*recommend.SessionStats, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	stats, err := s.engine.Stats(ctx, req.SessionID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return stats, nil
}

func (s *Service) GetSimilarMovies(ctx context.Context, req *GetSimilarMoviesRequest) (*GetSimilarMoviesResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	movies, err := s.engine.GetSimilarMovies(ctx, req.MovieID, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &GetSimilarMoviesResponse{Movies: movies}, nil
}

// HealthCheck reports "healthy", "degraded" while the catalog breaker is
// open, or "unhealthy" when the database does not answer.
func (s *Service) HealthCheck(ctx context.Context, _ *HealthCheckRequest) (*HealthCheckResponse, error) {
	resp := &HealthCheckResponse{Status: "healthy", Service: serviceLabel}

	sqlDB, err := s.appCtx.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.appCtx.Logger.Error("health check: database unreachable", "err", err)
		resp.Status = "unhealthy"
		return resp, nil
	}
	if s.appCtx.Catalog != nil && s.appCtx.Catalog.State() == gobreaker.StateOpen {
		resp.Status = "degraded"
	}
	return resp, nil
}
