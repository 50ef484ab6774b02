package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/moviematch/internal/catalog"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/metrics"
	"github.com/oggyb/moviematch/internal/recommend"
)

const defaultFeedTimeout = 15 * time.Second

// FeedBatch is the next set of movies shown to a member.
type FeedBatch struct {
	Movies       []recommend.Recommendation
	Personalized bool
	Stage        recommend.Stage
}

// MovieFeed serves swipe batches. It asks the engine first and degrades to a
// random catalog sample whenever the engine cannot answer in time.
type MovieFeed struct {
	store   Store
	engine  Recommender
	catalog catalog.Catalog
	timeout time.Duration
	log     *slog.Logger
}

// NewMovieFeed creates a feed. engine may be nil, in which case every batch is
// random. timeout <= 0 uses 15s.
func NewMovieFeed(store Store, engine Recommender, cat catalog.Catalog, timeout time.Duration, log *slog.Logger) *MovieFeed {
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &MovieFeed{store: store, engine: engine, catalog: cat, timeout: timeout, log: log}
}

// Next returns up to size movies for memberID that neither member has seen.
func (f *MovieFeed) Next(ctx context.Context, code, memberID string, size int) (*FeedBatch, error) {
	if size <= 0 {
		size = recommend.DefaultBatchSize
	}
	s, err := f.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !s.IsMember(memberID) {
		return nil, fmt.Errorf("member %s: %w", memberID, svcErr.ErrMemberNotInSession)
	}

	reason := f.skipReason(s)
	if reason == "" {
		batch, err := f.personalized(ctx, s, memberID, size)
		if err == nil {
			return batch, nil
		}
		reason = fallbackReason(err)
		f.log.Warn("serving random batch", "session", code, "member", memberID, "reason", reason, "err", err)
	}
	metrics.FeedFallbacks.WithLabelValues(reason).Inc()
	return f.random(ctx, s, size)
}

func (f *MovieFeed) skipReason(s *Session) string {
	switch {
	case f.engine == nil || !s.UseSmartMatching:
		return "disabled"
	case s.MatchingSessionID == "":
		return "pending"
	}
	return ""
}

func (f *MovieFeed) personalized(ctx context.Context, s *Session, memberID string, size int) (*FeedBatch, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	batch, err := f.engine.GetRecommendations(ctx, recommend.Request{
		SessionID: s.MatchingSessionID,
		BatchSize: size,
		UserID:    memberID,
		Exclude:   s.ViewedMovies,
	})
	if err != nil {
		return nil, err
	}
	if len(batch.Movies) == 0 {
		return nil, svcErr.ErrInsufficientCandidates
	}
	return &FeedBatch{Movies: batch.Movies, Personalized: true, Stage: batch.Stage}, nil
}

func (f *MovieFeed) random(ctx context.Context, s *Session, size int) (*FeedBatch, error) {
	movies, err := f.catalog.Random(ctx, size, catalog.Filter{Exclude: s.ViewedMovies})
	if err != nil {
		return nil, err
	}
	out := &FeedBatch{Movies: make([]recommend.Recommendation, 0, len(movies))}
	for _, m := range movies {
		out.Movies = append(out.Movies, recommend.Recommendation{Movie: m})
	}
	return out, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, svcErr.ErrAlgorithmUnavailable):
		return "unavailable"
	case errors.Is(err, svcErr.ErrInsufficientCandidates):
		return "insufficient"
	}
	return "error"
}
