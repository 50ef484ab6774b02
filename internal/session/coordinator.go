package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/metrics"
	"github.com/oggyb/moviematch/internal/recommend"
	"github.com/oggyb/moviematch/internal/utils/pagination"
)

const (
	codeDigits      = 6
	defaultAttempts = 10
)

// Coordinator owns the session lifecycle.
type Coordinator struct {
	store     Store
	hub       *Hub
	publisher Publisher
	engine    Recommender
	log       *slog.Logger
	attempts  int
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPublisher replaces the hub as publisher, e.g. with a RedisRelay.
func WithPublisher(p Publisher) CoordinatorOption {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithRecommender enables swipe forwarding and leader bootstrap.
func WithRecommender(r Recommender) CoordinatorOption {
	return func(c *Coordinator) { c.engine = r }
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCodeSource makes code generation reproducible.
func WithCodeSource(r *rand.Rand) CoordinatorOption {
	return func(c *Coordinator) { c.rng = r }
}

// WithCodeAttempts bounds code allocation retries.
func WithCodeAttempts(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator over store and hub.
func NewCoordinator(store Store, hub *Hub, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:     store,
		hub:       hub,
		publisher: hub,
		log:       slog.Default(),
		attempts:  defaultAttempts,
		now:       func() time.Time { return time.Now().UTC() },
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession allocates a fresh code and stores a session with the creator
// as its only member.
func (c *Coordinator) CreateSession(ctx context.Context, creatorID string) (*Session, error) {
	for i := 0; i < c.attempts; i++ {
		code := c.nextCode()
		s := newSession(code, creatorID, c.now())
		err := c.store.Create(ctx, s)
		if errors.Is(err, ErrCodeTaken) {
			c.log.Debug("session code collision", "code", code, "attempt", i+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.SessionsCreated.Inc()
		c.log.Info("session created", "session", code, "creator", creatorID)
		c.publisher.Publish(ctx, s)
		return s, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.attempts, svcErr.ErrCodeGenerationExhausted)
}

func (c *Coordinator) nextCode() string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return fmt.Sprintf("%0*d", codeDigits, c.rng.Intn(1_000_000))
}

// GetSession returns the current snapshot.
func (c *Coordinator) GetSession(ctx context.Context, code string) (*Session, error) {
	return c.store.Get(ctx, code)
}

// JoinSession adds memberID as the second member. Joining again is a no-op
// that returns the current state.
func (c *Coordinator) JoinSession(ctx context.Context, code, memberID string) (*Session, error) {
	result := "joined"
	s, changed, err := c.store.Update(ctx, code, func(s *Session) (bool, error) {
		result = "joined"
		if !s.Active {
			return false, svcErr.ErrSessionInactive
		}
		if s.IsMember(memberID) {
			result = "rejoined"
			return false, nil
		}
		if len(s.Members) >= MaxMembers {
			return false, svcErr.ErrSessionFull
		}
		s.Members = append(s.Members, memberID)
		if _, ok := s.UserHistory[memberID]; !ok {
			s.UserHistory[memberID] = []SwipeEvent{}
		}
		return true, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, svcErr.ErrSessionFull):
			metrics.SessionJoins.WithLabelValues("full").Inc()
		case errors.Is(err, svcErr.ErrSessionNotFound):
			metrics.SessionJoins.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}
	metrics.SessionJoins.WithLabelValues(result).Inc()
	if changed {
		c.log.Info("member joined session", "session", code, "member", memberID)
		c.publisher.Publish(ctx, s)
	}
	return s, nil
}

// RecordSwipe stores a decision and detects a match.
//
// Behavior:
//   - swipes[movie][member] is overwritten on a re-swipe.
//   - Every swipe appends a history entry.
//   - movie joins viewedMovies and, when both members liked it, matches.
//     A dislike withdraws an existing match, so matches holds exactly the
//     movies both members currently like.
//   - With smart matching on and a recommendation session bootstrapped, the
//     decision is forwarded to the engine. Engine failures are only logged.
func (c *Coordinator) RecordSwipe(ctx context.Context, code, memberID string, movieID int64, liked bool) (*Session, error) {
	matched := false
	s, changed, err := c.store.Update(ctx, code, func(s *Session) (bool, error) {
		matched = false
		if !s.IsMember(memberID) {
			return false, fmt.Errorf("member %s: %w", memberID, svcErr.ErrMemberNotInSession)
		}
		votes := s.Swipes[movieID]
		if votes == nil {
			votes = map[string]bool{}
			s.Swipes[movieID] = votes
		}
		votes[memberID] = liked
		s.UserHistory[memberID] = append(s.UserHistory[memberID], SwipeEvent{MovieID: movieID, Liked: liked, At: c.now()})
		s.ViewedMovies, _ = addID(s.ViewedMovies, movieID)

		// Matches shrink on a dislike instead of only growing: a movie stays a
		// match exactly while both members like it.
		if !liked {
			s.Matches = removeID(s.Matches, movieID)
		} else if partner, ok := s.Partner(memberID); ok && votes[partner] {
			s.Matches, matched = addID(s.Matches, movieID)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	direction := "dislike"
	if liked {
		direction = "like"
	}
	metrics.Swipes.WithLabelValues(direction).Inc()
	if matched {
		metrics.Matches.Inc()
		c.log.Info("match", "session", code, "movie", movieID)
	}
	if changed {
		c.publisher.Publish(ctx, s)
	}

	c.forwardFeedback(ctx, s, memberID, movieID, liked)
	return s, nil
}

func (c *Coordinator) forwardFeedback(ctx context.Context, s *Session, memberID string, movieID int64, liked bool) {
	if c.engine == nil || !s.UseSmartMatching || s.MatchingSessionID == "" {
		return
	}
	fb := recommend.Feedback{UserID: memberID, MovieID: movieID, Type: recommend.FeedbackDislike}
	if liked {
		fb.Type = recommend.FeedbackLike
	}
	if _, err := c.engine.SubmitFeedback(ctx, s.MatchingSessionID, fb); err != nil {
		c.log.Warn("feedback forwarding failed", "session", s.Code, "matching_session", s.MatchingSessionID, "err", err)
	}
}

// SetSmartMatching toggles personalised recommendations for the session.
func (c *Coordinator) SetSmartMatching(ctx context.Context, code, memberID string, enabled bool) (*Session, error) {
	s, changed, err := c.store.Update(ctx, code, func(s *Session) (bool, error) {
		if !s.IsMember(memberID) {
			return false, fmt.Errorf("member %s: %w", memberID, svcErr.ErrMemberNotInSession)
		}
		if s.UseSmartMatching == enabled {
			return false, nil
		}
		s.UseSmartMatching = enabled
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		c.publisher.Publish(ctx, s)
	}
	return s, nil
}

// LeaveSession removes memberID; the session deactivates when empty.
func (c *Coordinator) LeaveSession(ctx context.Context, code, memberID string) (*Session, error) {
	s, changed, err := c.store.Update(ctx, code, func(s *Session) (bool, error) {
		idx := -1
		for i, m := range s.Members {
			if m == memberID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, fmt.Errorf("member %s: %w", memberID, svcErr.ErrMemberNotInSession)
		}
		s.Members = append(s.Members[:idx:idx], s.Members[idx+1:]...)
		if len(s.Members) == 0 {
			s.Active = false
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		c.log.Info("member left session", "session", code, "member", memberID, "active", s.Active)
		c.publisher.Publish(ctx, s)
	}
	return s, nil
}

// Subscribe registers fn for every committed snapshot of code and delivers
// the current state (nil when the session does not exist) first.
func (c *Coordinator) Subscribe(ctx context.Context, code string, fn func(*Session)) (unsubscribe func(), err error) {
	sub := c.hub.Subscribe(code, fn)
	current, err := c.store.Get(ctx, code)
	switch {
	case errors.Is(err, svcErr.ErrSessionNotFound):
		current = nil
	case err != nil:
		sub.Unsubscribe()
		return nil, err
	}
	sub.Offer(current)
	return sub.Unsubscribe, nil
}

// SetMatchingSessionIDIfAbsent writes id only when no matching session is
// recorded. It returns the id that ends up stored.
func (c *Coordinator) SetMatchingSessionIDIfAbsent(ctx context.Context, code, id string) (string, error) {
	s, changed, err := c.store.Update(ctx, code, func(s *Session) (bool, error) {
		if s.MatchingSessionID != "" {
			return false, nil
		}
		s.MatchingSessionID = id
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if changed {
		c.publisher.Publish(ctx, s)
	}
	return s.MatchingSessionID, nil
}

// ElectLeaderAndBootstrap creates the pair's recommendation session when
// memberID is the leader, the lexicographically smaller of the two members.
//
// Behavior:
//   - Fewer than two members, or an id already recorded: returns the
//     current id ("" when none) without work.
//   - Follower: returns "" and waits for the id on the subscription stream.
//   - Leader: creates (or re-uses on ErrDuplicateSession) the engine session,
//     then compare-and-sets it. A lost race keeps the winner's id.
func (c *Coordinator) ElectLeaderAndBootstrap(ctx context.Context, s *Session, memberID string) (string, error) {
	if s == nil || len(s.Members) < MaxMembers || c.engine == nil {
		return "", nil
	}
	if s.MatchingSessionID != "" {
		return s.MatchingSessionID, nil
	}
	if !s.IsMember(memberID) {
		return "", fmt.Errorf("member %s: %w", memberID, svcErr.ErrMemberNotInSession)
	}
	leader, follower := recommend.CanonicalPair(s.Members[0], s.Members[1])
	if memberID != leader {
		return "", nil
	}

	id, err := c.engine.CreateSession(ctx, leader, follower)
	if err != nil && !errors.Is(err, svcErr.ErrDuplicateSession) {
		return "", err
	}

	stored, err := c.SetMatchingSessionIDIfAbsent(ctx, s.Code, id)
	if err != nil {
		return "", err
	}
	if stored != id {
		c.log.Warn("lost matching session race", "session", s.Code, "discarded", id, "kept", stored)
	}
	return stored, nil
}

// HistoryPage is one page of a member's swipe history, newest first.
type HistoryPage struct {
	Events        []SwipeEvent
	NextPageToken string
}

// GetSwipeHistory pages through memberID's history newest first.
func (c *Coordinator) GetSwipeHistory(ctx context.Context, code, memberID, pageToken string, limit int) (*HistoryPage, error) {
	if limit <= 0 {
		limit = 20
	}
	s, err := c.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !s.IsMember(memberID) {
		return nil, fmt.Errorf("member %s: %w", memberID, svcErr.ErrMemberNotInSession)
	}
	history := s.UserHistory[memberID]

	cursor, err := pagination.Decode(pageToken)
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}
	end := len(history)
	if pageToken != "" {
		end = cursor.Before
		if end > len(history) || (end > 0 && history[end-1].At.UnixMilli() != cursor.AtUnix) {
			return nil, svcErr.InvalidArgument("invalid pagination token")
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}
	page := &HistoryPage{Events: make([]SwipeEvent, 0, end-start)}
	for i := end - 1; i >= start; i-- {
		page.Events = append(page.Events, history[i])
	}
	if start > 0 {
		token, err := pagination.Encode(pagination.Cursor{Before: start, AtUnix: history[start-1].At.UnixMilli()})
		if err != nil {
			return nil, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
