package session

import (
	"context"

	"github.com/oggyb/moviematch/internal/app"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/recommend"
	"github.com/oggyb/moviematch/internal/server"
	"github.com/oggyb/moviematch/internal/service"
	sess "github.com/oggyb/moviematch/internal/session"
)

// Service implements the Session gRPC API on top of the coordinator.
// Each method validates its request, delegates, and maps domain errors to
// gRPC status codes.
type Service struct {
	appCtx *app.AppContext
	coord  *sess.Coordinator
	feed   *sess.MovieFeed
}

// NewSessionService creates a new Session service with dependencies from AppContext.
func NewSessionService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		coord:  appCtx.Coordinator,
		feed:   appCtx.Feed,
	}
}

// CreateSession opens a session with the caller as its only member and a
// fresh six-digit code.
func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("CreateSession called", "member", req.MemberID)

	created, err := s.coord.CreateSession(ctx, req.MemberID)
	if err != nil {
		s.appCtx.Logger.Error("CreateSession failed", "member", req.MemberID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &SessionResponse{Session: created}, nil
}

// JoinSession adds the caller as the second member.
func (s *Service) JoinSession(ctx context.Context, req *JoinSessionRequest) (*SessionResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("JoinSession called", "session", req.Code, "member", req.MemberID)

	joined, err := s.coord.JoinSession(ctx, req.Code, req.MemberID)
	if err != nil {
		s.appCtx.Logger.Info("JoinSession rejected", "session", req.Code, "member", req.MemberID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &SessionResponse{Session: joined}, nil
}

func (s *Service) GetSession(ctx context.Context, req *GetSessionRequest) (*SessionResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	got, err := s.coord.GetSession(ctx, req.Code)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &SessionResponse{Session: got}, nil
}

// RecordSwipe stores one like/dislike and reports whether the movie is a
// match after the swipe.
func (s *Service) RecordSwipe(ctx context.Context, req *RecordSwipeRequest) (*RecordSwipeResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("RecordSwipe called", "session", req.Code, "member", req.MemberID, "movie", req.MovieID, "liked", req.Liked)

	updated, err := s.coord.RecordSwipe(ctx, req.Code, req.MemberID, req.MovieID, req.Liked)
	if err != nil {
		s.appCtx.Logger.Error("RecordSwipe failed", "session", req.Code, "member", req.MemberID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &RecordSwipeResponse{Session: updated, IsMatch: updated.HasMatch(req.MovieID)}, nil
}

func (s *Service) SetSmartMatching(ctx context.Context, req *SetSmartMatchingRequest) (*SessionResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	updated, err := s.coord.SetSmartMatching(ctx, req.Code, req.MemberID, req.Enabled)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &SessionResponse{Session: updated}, nil
}

func (s *Service) LeaveSession(ctx context.Context, req *LeaveSessionRequest) (*SessionResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("LeaveSession called", "session", req.Code, "member", req.MemberID)

	updated, err := s.coord.LeaveSession(ctx, req.Code, req.MemberID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &SessionResponse{Session: updated}, nil
}

// BootstrapMatching is called by each member once the session is full.
// Only the leader creates the recommendation session; the follower gets an
// empty id until the leader's write lands.
func (s *Service) BootstrapMatching(ctx context.Context, req *BootstrapMatchingRequest) (*BootstrapMatchingResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	current, err := s.coord.GetSession(ctx, req.Code)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	id, err := s.coord.ElectLeaderAndBootstrap(ctx, current, req.MemberID)
	if err != nil {
		s.appCtx.Logger.Error("BootstrapMatching failed", "session", req.Code, "member", req.MemberID, "err", err)
		return nil, svcErr.Map(err)
	}

	resp := &BootstrapMatchingResponse{MatchingSessionID: id}
	if len(current.Members) == sess.MaxMembers {
		leader, _ := recommend.CanonicalPair(current.Members[0], current.Members[1])
		resp.Leader = leader == req.MemberID
	}
	return resp, nil
}

// GetSwipeHistory returns the caller's swipes newest first.
func (s *Service) GetSwipeHistory(ctx context.Context, req *GetSwipeHistoryRequest) (*GetSwipeHistoryResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	page, err := s.coord.GetSwipeHistory(ctx, req.Code, req.MemberID, req.PageToken, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &GetSwipeHistoryResponse{Events: page.Events, NextPageToken: page.NextPageToken}, nil
}

// NextMovies returns the next batch to swipe on. It never fails because the
// engine is slow or unavailable; those cases come back as a random batch
// with personalized=false.
func (s *Service) NextMovies(ctx context.Context, req *NextMoviesRequest) (*NextMoviesResponse, error) {
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	batch, err := s.feed.Next(ctx, req.Code, req.MemberID, req.BatchSize)
	if err != nil {
		s.appCtx.Logger.Error("NextMovies failed", "session", req.Code, "member", req.MemberID, "err", err)
		return nil, svcErr.Map(err)
	}
	return &NextMoviesResponse{Movies: batch.Movies, Personalized: batch.Personalized, Stage: batch.Stage}, nil
}

// SubscribeSession streams the current snapshot and then every committed
// change until the client goes away.
func (s *Service) SubscribeSession(req *SubscribeSessionRequest, stream server.Sender[SessionEvent]) error {
	if err := service.Validate(req); err != nil {
		return err
	}
	ctx := stream.Context()
	s.appCtx.Logger.Debug("SubscribeSession opened", "session", req.Code)

	updates := make(chan *sess.Session)
	done := make(chan struct{})
	unsubscribe, err := s.coord.Subscribe(ctx, req.Code, func(snap *sess.Session) {
		select {
		case updates <- snap:
		case <-ctx.Done():
		case <-done:
		}
	})
	if err != nil {
		return svcErr.Map(err)
	}
	defer unsubscribe()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			s.appCtx.Logger.Debug("SubscribeSession closed", "session", req.Code)
			return nil
		case snap := <-updates:
			if err := stream.Send(&SessionEvent{Session: snap}); err != nil {
				return err
			}
		}
	}
}
