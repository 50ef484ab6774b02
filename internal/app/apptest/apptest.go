// Package apptest builds a fully wired AppContext for service tests.
package apptest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/oggyb/moviematch/internal/app"
	"github.com/oggyb/moviematch/internal/cache"
	"github.com/oggyb/moviematch/internal/config"
	"github.com/oggyb/moviematch/internal/db/dbtest"
)

// New spins up an in-memory SQLite database with the five-movie catalog,
// starts a miniredis, and wires everything into an AppContext with the
// relay running. Each test gets its own isolated DB + Redis.
func New(t *testing.T) *app.AppContext {
	t.Helper()

	gdb := dbtest.OpenWithCatalog(t)
	mr := miniredis.RunT(t)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Password = ""
	cfg.Redis.DB = 0
	cfg.Engine = config.DefaultEngineConfig()
	cfg.Engine.Seed = 1
	cfg.Session.CodeAttempts = 10
	cfg.Session.WriteRetries = 50

	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = redisCache.Client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // discard logs in tests

	appCtx, err := app.New(cfg, gdb, redisCache, logger)
	if err != nil {
		t.Fatalf("failed to build app context: %v", err)
	}
	if err := appCtx.Start(context.Background()); err != nil {
		t.Fatalf("failed to start relay: %v", err)
	}
	t.Cleanup(appCtx.Close)
	return appCtx
}
