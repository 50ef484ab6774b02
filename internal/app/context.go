package app

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/moviematch/internal/cache"
	"github.com/oggyb/moviematch/internal/catalog"
	"github.com/oggyb/moviematch/internal/config"
	"github.com/oggyb/moviematch/internal/logger"
	"github.com/oggyb/moviematch/internal/metrics"
	"github.com/oggyb/moviematch/internal/recommend"
	"github.com/oggyb/moviematch/internal/repository"
	"github.com/oggyb/moviematch/internal/session"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.) and the
// domain components built on top of them.
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Config     *config.Config

	Catalog     *catalog.BreakerCatalog
	Engine      *recommend.Engine
	Explainer   *recommend.ExplanationBuilder
	Hub         *session.Hub
	Relay       *session.RedisRelay
	Coordinator *session.Coordinator
	Feed        *session.MovieFeed
}

// New creates a new AppContext. rdb may be nil, in which case the engine runs
// without a cache and snapshots only reach subscribers of this process.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, log *slog.Logger) (*AppContext, error) {
	if log == nil {
		log = logger.L()
	}
	a := &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     log,
		Config:     cfg,
		Hub:        session.NewHub(),
	}

	a.Catalog = catalog.NewBreakerCatalog(
		catalog.NewGormCatalog(db),
		catalog.DefaultBreakerSettings(),
		logger.ForComponent(log, "catalog"),
	)

	engineLog := logger.ForComponent(log, "engine")
	opts := []recommend.Option{recommend.WithLogger(engineLog)}
	if rdb != nil {
		opts = append(opts, recommend.WithCache(rdb))
	}
	engine, err := recommend.NewEngine(repository.NewRecommendationRepository(db), a.Catalog, cfg.Engine, opts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.Engine = engine
	engine.Feedback().OnRefresh(func(userID string) {
		metrics.PreferenceRefreshes.Inc()
		engineLog.Debug("preferences refreshed", "user", userID)
	})
	a.Explainer = recommend.NewExplanationBuilder(engine)

	sessionLog := logger.ForComponent(log, "session")
	var publisher session.Publisher = a.Hub
	if rdb != nil {
		a.Relay = session.NewRedisRelay(a.Hub, rdb.Client, sessionLog)
		publisher = a.Relay
	}

	store := repository.NewSessionRepository(db, cfg.Session.WriteRetries, sessionLog)
	a.Coordinator = session.NewCoordinator(store, a.Hub,
		session.WithPublisher(publisher),
		session.WithRecommender(engine),
		session.WithCoordinatorLogger(sessionLog),
		session.WithCodeAttempts(cfg.Session.CodeAttempts),
	)
	a.Feed = session.NewMovieFeed(store, engine, a.Catalog, cfg.Engine.Timeout, sessionLog)

	return a, nil
}

// Start begins cross-process snapshot delivery when Redis is configured.
func (a *AppContext) Start(ctx context.Context) error {
	if a.Relay == nil {
		return nil
	}
	return a.Relay.Start(ctx)
}

// Close stops background work started by Start.
func (a *AppContext) Close() {
	if a.Relay != nil {
		a.Relay.Stop()
	}
}
