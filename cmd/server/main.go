// Package main is the entrypoint for the StyleReel API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jwoolee/stylereel/internal/api"
	"github.com/jwoolee/stylereel/internal/api/handler"
	mw "github.com/jwoolee/stylereel/internal/api/middleware"
	"github.com/jwoolee/stylereel/internal/assets"
	"github.com/jwoolee/stylereel/internal/cache"
	"github.com/jwoolee/stylereel/internal/catalog"
	"github.com/jwoolee/stylereel/internal/config"
	"github.com/jwoolee/stylereel/internal/jobs"
	"github.com/jwoolee/stylereel/internal/match"
	"github.com/jwoolee/stylereel/internal/publish"
	"github.com/jwoolee/stylereel/internal/render"
	"github.com/jwoolee/stylereel/internal/state"
	"github.com/jwoolee/stylereel/internal/vectorindex"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(cfg.Storage.StateFile, logger)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	storage, err := assets.NewStorage(cfg.Storage.AssetRoot, cfg.Storage.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("init asset storage: %w", err)
	}

	var appCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		appCache = redisCache
	} else {
		slog.Info("REDIS_URL not set, using in-memory cache")
		appCache = cache.NewMemory()
	}

	var index vectorindex.Index
	if cfg.Qdrant.Enabled {
		client := vectorindex.NewClient(vectorindex.Config{
			BaseURL:         cfg.Qdrant.URL,
			Collection:      cfg.Qdrant.Collection,
			Timeout:         cfg.Qdrant.Timeout,
			UpsertBatchSize: cfg.Qdrant.UpsertBatchSize,
		}, logger)
		index = client
		slog.Info("qdrant index enabled", "url", cfg.Qdrant.URL, "collection", cfg.Qdrant.Collection)
	} else {
		index = vectorindex.Noop{}
		slog.Info("qdrant disabled, matching falls back to in-memory scan")
	}

	crawler := catalog.NewCrawler(cfg.Catalog, storage, appCache, logger)
	catalogSvc := catalog.NewService(store, crawler, index, cfg.Catalog, logger)
	engine := match.NewEngine(store, index, storage, cfg.Catalog, cfg.Qdrant.TopKMultiplier, logger)

	var renderer render.Renderer
	if cfg.Pipeline.EnableRealRender {
		renderer = render.NewFFmpegRenderer(storage, cfg.Pipeline.RenderSeconds, logger)
	} else {
		renderer = render.NewStubRenderer(storage)
		slog.Info("real rendering disabled, using stub renderer")
	}

	var publisher publish.Publisher
	if cfg.YouTubeConfigured() {
		publisher = publish.NewYouTubePublisher(cfg.YouTube, logger)
		slog.Info("youtube publisher configured", "privacy", cfg.YouTube.PrivacyStatus)
	} else {
		publisher = publish.Noop{}
		slog.Info("youtube credentials not set, uploads will be skipped")
	}

	jobSvc := jobs.NewService(
		store,
		engine,
		storage,
		renderer,
		publisher,
		appCache,
		jobs.RandomGate{},
		cfg.Pipeline,
		cfg.YouTube,
		logger,
	)

	jh := handler.NewJobHandler(jobSvc)
	ch := handler.NewCatalogHandler(catalogSvc)
	sh := handler.NewSystemHandler(jobSvc)

	router := api.NewRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(appCache, 0),

		CreateJob:  jh.Create,
		GetJob:     jh.Get,
		RerankJob:  jh.Rerank,
		ApproveJob: jh.Approve,
		RetryJob:   jh.Retry,
		PublishJob: jh.Publish,

		StartCrawl:   ch.StartCrawl,
		GetCrawlJob:  ch.GetCrawlJob,
		RebuildIndex: ch.RebuildIndex,
		CatalogStats: ch.Stats,

		History: sh.History,
		Health:  sh.Health,
		Metrics: sh.Metrics,

		AssetRoot: storage.Root(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
