package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"geminichat/internal/api"
	"geminichat/internal/config"
	"geminichat/internal/logger"
	"geminichat/internal/redis"
	"geminichat/internal/service/ai"
	"geminichat/internal/service/assistant"
	"geminichat/internal/service/upload"
	"geminichat/internal/store"
	"geminichat/internal/worker"
)

func main() {
	cfgPath := os.Getenv("GEMINICHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl := logger.New(cfg.Log)
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workers := worker.NewManager(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeoutSeconds) * time.Second,
	}, zl)
	defer workers.Close()

	// queued jobs of an evicted session have nothing left to write to
	sessions := store.New(
		store.WithMaxSessions(cfg.Session.MaxSessions),
		store.WithIdleTTL(cfg.SessionIdleTTL()),
		store.WithLogger(zl.Named("store")),
		store.WithEvictionHook(workers.CancelSession),
	)

	var compareCache *ai.CompareCache
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			// the cache is optional; compare still works without it
			zl.Warn("redis unavailable, compare cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			compareCache = ai.NewCompareCache(rdb, cfg.CompareCacheTTL(), zl.Named("compare_cache"))
		}
	}

	aiService := ai.NewService(cfg,
		ai.WithCompareCache(compareCache),
		ai.WithLogger(zl.Named("ai")),
	)

	assistantService := assistant.NewService(sessions, aiService,
		assistant.WithExecutor(workers),
		assistant.WithLogger(zl.Named("assistant")),
		assistant.WithGenerationTimeout(cfg.GenerationTimeout()),
	)

	uploads, err := upload.NewService(ctx, cfg.BasicConfig.UploadDir, cfg.BasicConfig.MaxUploadBytes, zl.Named("upload"))
	if err != nil {
		zl.Fatal("init upload service", zap.Error(err))
	}
	uploads.StartCleaner(ctx, cfg.UploadTTL(), upload.DefaultCleanupInterval)

	if cfg.Log.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handlers := api.NewHandler(assistantService, aiService, uploads, zl.Named("http"))
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zl.Warn("server shutdown", zap.Error(err))
		}
	}()

	zl.Info("server listening", zap.String("addr", addr), zap.String("default_model", cfg.BasicConfig.DefaultModel))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
