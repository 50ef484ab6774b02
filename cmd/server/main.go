package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oggyb/moviematch/internal/app"
	"github.com/oggyb/moviematch/internal/cache"
	"github.com/oggyb/moviematch/internal/config"
	"github.com/oggyb/moviematch/internal/db"
	"github.com/oggyb/moviematch/internal/logger"
	"github.com/oggyb/moviematch/internal/server"
	"github.com/oggyb/moviematch/internal/service/matching"
	"github.com/oggyb/moviematch/internal/service/session"
)

const devCatalogSize = 200

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	if err := cfg.LoadEngineTuning(cfg.Engine.TuningFile); err != nil {
		log.Error("failed to load engine tuning", "file", cfg.Engine.TuningFile, "err", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	if cfg.App.ENV == "development" {
		var movies int64
		if err := database.Model(&db.Movie{}).Count(&movies).Error; err == nil && movies == 0 {
			if err := db.SeedCatalog(database, devCatalogSize, time.Now().UnixNano()); err != nil {
				log.Error("failed to seed", "err", err)
			}
		}
	}

	// Inject logger into app context
	appCtx, err := app.New(cfg, database, redisCache, log)
	if err != nil {
		log.Error("failed to build app context", "err", err)
		return
	}
	if err := appCtx.Start(ctx); err != nil {
		log.Error("failed to start session relay", "err", err)
		return
	}
	defer appCtx.Close()

	if metricsSrv := server.StartMetricsServer(cfg.Metrics.Addr, log); metricsSrv != nil {
		log.Info("serving metrics", "addr", cfg.Metrics.Addr)
		defer metricsSrv.Close()
	}

	registrars := []server.Registrar{
		session.NewRegistrar(appCtx),
		matching.NewRegistrar(appCtx),
	}

	addr := cfg.GRPC.Host + ":" + cfg.GRPC.Port
	log.Info("starting gRPC server", "addr", addr, "env", cfg.App.ENV)

	if err := server.StartGRPCServer(ctx, cfg, registrars...); err != nil {
		log.Error("failed to start gRPC server", "err", err)
	}
	log.Info("gRPC server stopped")
}
