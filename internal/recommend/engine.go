// Package recommend ranks movies for a pair of users and learns each user's
// taste from their feedback.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/moviematch/internal/catalog"
	"github.com/oggyb/moviematch/internal/config"
	"github.com/oggyb/moviematch/internal/db"
	svcErr "github.com/oggyb/moviematch/internal/errors"
	"github.com/oggyb/moviematch/internal/metrics"
)

// DefaultBatchSize is used when a request asks for zero movies.
const DefaultBatchSize = 10

// Request asks for one ranked batch.
type Request struct {
	SessionID string
	BatchSize int
	UserID    string
	// Exclude adds ids on top of the movies already decided in the session.
	Exclude []int64
}

// Recommendation is a ranked movie.
type Recommendation struct {
	catalog.Movie
	Score float64 `json:"score"`
}

// Batch is the result of GetRecommendations.
type Batch struct {
	Movies            []Recommendation `json:"movies"`
	Stage             Stage            `json:"session_stage"`
	TotalInteractions int              `json:"total_interactions"`
	MutualLikes       int              `json:"mutual_likes"`
}

// Feedback is a single swipe sent to the engine.
type Feedback struct {
	UserID      string
	MovieID     int64
	Type        FeedbackType
	TimeSpentMs *int64
}

// FeedbackResult reports the session after a feedback event.
type FeedbackResult struct {
	MutualLike        bool
	Stage             Stage
	TotalInteractions int
	MutualLikes       int
}

// UserStats counts one user's feedback within a session.
type UserStats struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
	Skips    int `json:"skips"`
}

// SessionStats summarises a recommendation session.
type SessionStats struct {
	SessionID         string               `json:"session_id"`
	Users             []string             `json:"users"`
	Stage             Stage                `json:"stage"`
	TotalInteractions int                  `json:"total_interactions"`
	MutualLikes       int                  `json:"mutual_likes"`
	Feedback          map[string]UserStats `json:"feedback"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Engine is the RecommendationEngine.
type Engine struct {
	store      Store
	catalog    catalog.Catalog
	cache      Cache
	feedback   *FeedbackProcessor
	scheduler  StageScheduler
	filter     *QualityFilter
	oversample int
	log        *slog.Logger
	newID      func() string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customises an Engine.
type Option func(*Engine)

// WithCache puts Redis in front of preference and seen-set reads.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRand injects the diversity source, for reproducible ordering in tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithIDGenerator overrides uuid session ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine wires an engine from the engine config. A zero Seed uses a
// time-seeded source.
func NewEngine(store Store, cat catalog.Catalog, cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	filter, err := NewQualityFilter(cfg.QualityFilter)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	oversample := cfg.Oversample
	if oversample < 1 {
		oversample = 1
	}

	e := &Engine{
		store:      store,
		catalog:    cat,
		cache:      noopCache{},
		scheduler:  NewStageScheduler(cfg.ExplorationLimit, cfg.LearningLimit),
		filter:     filter,
		oversample: oversample,
		log:        slog.Default(),
		newID:      uuid.NewString,
		rng:        rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.feedback = NewFeedbackProcessor(store, e.cache, e.log)
	return e, nil
}

// Scheduler exposes the stage schedule.
func (e *Engine) Scheduler() StageScheduler { return e.scheduler }

// Feedback exposes the processor, e.g. to register refresh listeners.
func (e *Engine) Feedback() *FeedbackProcessor { return e.feedback }

// CreateSession creates the recommendation session for a pair. Order of the
// ids does not matter. On a duplicate pair it returns the existing id along
// with ErrDuplicateSession.
func (e *Engine) CreateSession(ctx context.Context, userA, userB string) (string, error) {
	if userA == "" || userB == "" || userA == userB {
		return "", fmt.Errorf("create session: need two distinct users")
	}
	a, b := CanonicalPair(userA, userB)

	rs, err := e.store.CreateSession(ctx, e.newID(), a, b)
	if errors.Is(err, svcErr.ErrDuplicateSession) && rs != nil {
		return rs.ID, err
	}
	if err != nil {
		return "", err
	}
	e.log.Info("recommendation session created", "session", rs.ID, "user_a", a, "user_b", b)
	return rs.ID, nil
}

// CanonicalPair sorts two user ids.
func CanonicalPair(u1, u2 string) (string, string) {
	if u2 < u1 {
		return u2, u1
	}
	return u1, u2
}

// GetRecommendations ranks a candidate batch for the pair.
//
// Behavior:
//  1. Loads both users' preferences and the session's decided movies concurrently.
//  2. Samples BatchSize*oversample random movies excluding decided ones.
//  3. Applies the soft quality filter.
//  4. Scores by stage weights and sorts stably, so ties keep catalog order.
//
// Returns ErrInsufficientCandidates when nothing is left to rank.
func (e *Engine) GetRecommendations(ctx context.Context, req Request) (*Batch, error) {
	start := time.Now()
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}

	rs, err := e.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && req.UserID != rs.UserA && req.UserID != rs.UserB {
		return nil, fmt.Errorf("user %s: %w", req.UserID, svcErr.ErrMemberNotInSession)
	}
	stage := e.scheduler.Advance(Stage(rs.Stage), rs.TotalInteractions)

	var (
		prefsA, prefsB *Preferences
		seen           []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		prefsA, err = e.loadPreferences(gctx, rs.UserA)
		return err
	})
	g.Go(func() (err error) {
		prefsB, err = e.loadPreferences(gctx, rs.UserB)
		return err
	})
	g.Go(func() (err error) {
		seen, err = e.loadSeen(gctx, rs.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	exclude := append(append(make([]int64, 0, len(seen)+len(req.Exclude)), seen...), req.Exclude...)
	candidates, err := e.catalog.Random(ctx, req.BatchSize*e.oversample, catalog.Filter{Exclude: exclude})
	if err != nil {
		return nil, err
	}
	candidates = e.filter.Apply(candidates, pairHint(prefsA, prefsB))
	if len(candidates) == 0 {
		return nil, fmt.Errorf("session %s: %w", rs.ID, svcErr.ErrInsufficientCandidates)
	}

	ranked := e.rank(candidates, prefsA, prefsB, e.scheduler.Weights(stage))
	if len(ranked) > req.BatchSize {
		ranked = ranked[:req.BatchSize]
	}

	metrics.RecommendationLatency.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	e.log.Debug("recommendations ranked", "session", rs.ID, "stage", stage, "candidates", len(candidates), "returned", len(ranked))

	return &Batch{
		Movies:            ranked,
		Stage:             stage,
		TotalInteractions: rs.TotalInteractions,
		MutualLikes:       rs.MutualLikes,
	}, nil
}

func (e *Engine) rank(candidates []catalog.Movie, a, b *Preferences, w Weights) []Recommendation {
	e.rngMu.Lock()
	diversity := make([]float64, len(candidates))
	for i := range diversity {
		diversity[i] = e.rng.Float64()
	}
	e.rngMu.Unlock()

	out := make([]Recommendation, 0, len(candidates))
	for i, m := range candidates {
		genre := Compatibility(GenreScore(a.GenrePreferences, m.Genres), GenreScore(b.GenrePreferences, m.Genres))
		semantic := Compatibility(SemanticScore(a.EmbeddingVector, m.Embedding), SemanticScore(b.EmbeddingVector, m.Embedding))
		score := w.Genre*genre + w.Embedding*semantic + w.Diversity*diversity[i]
		out = append(out, Recommendation{Movie: m, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SubmitFeedback applies one swipe to the sender's preferences and the
// session counters.
func (e *Engine) SubmitFeedback(ctx context.Context, sessionID string, fb Feedback) (*FeedbackResult, error) {
	t, ok := ParseFeedbackType(string(fb.Type))
	if !ok {
		return nil, svcErr.ErrInvalidFeedback
	}
	fb.Type = t
	rs, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var partner string
	switch fb.UserID {
	case rs.UserA:
		partner = rs.UserB
	case rs.UserB:
		partner = rs.UserA
	default:
		return nil, fmt.Errorf("user %s: %w", fb.UserID, svcErr.ErrMemberNotInSession)
	}

	movie, err := e.catalog.Get(ctx, fb.MovieID)
	if err != nil {
		return nil, err
	}
	var (
		updated *db.RecommendationSession
		mutual  bool
	)
	// preferences, decision, event log and counters commit together
	_, err = e.feedback.ProcessWith(ctx, fb.UserID, fb.Type, movie, func(ctx context.Context, row *db.UserPreference) error {
		var err error
		updated, mutual, err = e.store.RecordFeedback(ctx, FeedbackRecord{
			SessionID:   rs.ID,
			UserID:      fb.UserID,
			PartnerID:   partner,
			MovieID:     fb.MovieID,
			Feedback:    fb.Type,
			TimeSpentMs: fb.TimeSpentMs,
			Preferences: row,
		}, func(current string, total int) string {
			return string(e.scheduler.Advance(Stage(current), total))
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.cache.AppendSeen(ctx, rs.ID, fb.MovieID); err != nil {
		e.log.Warn("seen cache append failed", "session", rs.ID, "err", err)
	}

	e.log.Debug("feedback recorded", "session", rs.ID, "user", fb.UserID, "movie", fb.MovieID, "type", fb.Type, "mutual", mutual)
	return &FeedbackResult{
		MutualLike:        mutual,
		Stage:             Stage(updated.Stage),
		TotalInteractions: updated.TotalInteractions,
		MutualLikes:       updated.MutualLikes,
	}, nil
}

// GetUserPreferences returns the learned model, or the neutral prior for a
// user without feedback.
func (e *Engine) GetUserPreferences(ctx context.Context, userID string) (*Preferences, error) {
	return e.loadPreferences(ctx, userID)
}

// GetSimilarMovies proxies the catalog similarity query.
func (e *Engine) GetSimilarMovies(ctx context.Context, movieID int64, n int) ([]catalog.Movie, error) {
	if n <= 0 {
		n = DefaultBatchSize
	}
	return e.catalog.Similar(ctx, movieID, n)
}

// Stats returns counters and per-user feedback totals for a session.
func (e *Engine) Stats(ctx context.Context, sessionID string) (*SessionStats, error) {
	rs, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	counts, err := e.store.FeedbackCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	stats := &SessionStats{
		SessionID:         rs.ID,
		Users:             []string{rs.UserA, rs.UserB},
		Stage:             e.scheduler.Advance(Stage(rs.Stage), rs.TotalInteractions),
		TotalInteractions: rs.TotalInteractions,
		MutualLikes:       rs.MutualLikes,
		Feedback:          make(map[string]UserStats, 2),
		CreatedAt:         rs.CreatedAt,
		UpdatedAt:         rs.UpdatedAt,
	}
	for _, u := range stats.Users {
		c := counts[u]
		stats.Feedback[u] = UserStats{
			Likes:    c[string(FeedbackLike)],
			Dislikes: c[string(FeedbackDislike)],
			Skips:    c[string(FeedbackSkip)],
		}
	}
	return stats, nil
}

// loadPreferences reads Redis first, then the database, caching the result.
func (e *Engine) loadPreferences(ctx context.Context, userID string) (*Preferences, error) {
	var cached Preferences
	ok, err := e.cache.GetPreferences(ctx, userID, &cached)
	if err != nil {
		e.log.Warn("preference cache read failed", "user", userID, "err", err)
	} else if ok {
		return &cached, nil
	}

	row, err := e.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := NewPreferences(userID)
	if row != nil {
		prefs = preferencesFromRow(row)
	}
	if err := e.cache.SetPreferences(ctx, userID, prefs); err != nil {
		e.log.Warn("preference cache write failed", "user", userID, "err", err)
	}
	return prefs, nil
}

// loadSeen reads the decided-movie set from Redis, rebuilding it from the
// decision table on a miss.
func (e *Engine) loadSeen(ctx context.Context, sessionID string) ([]int64, error) {
	ids, ok, err := e.cache.GetSeen(ctx, sessionID)
	if err != nil {
		e.log.Warn("seen cache read failed", "session", sessionID, "err", err)
	} else if ok {
		return ids, nil
	}

	ids, err = e.store.DecidedMovieIDs(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.cache.StoreSeen(ctx, sessionID, ids...); err != nil {
		e.log.Warn("seen cache write failed", "session", sessionID, "err", err)
	}
	return ids, nil
}
