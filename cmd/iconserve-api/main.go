package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"iconserve/internal/api"
	"iconserve/internal/blobstore"
	"iconserve/internal/blobstore/fsblob"
	"iconserve/internal/cachetier"
	"iconserve/internal/config"
	"iconserve/internal/iconsvc"
	"iconserve/internal/indexstore"
	"iconserve/internal/indexstore/sqlitekv"
	"iconserve/internal/metrics"
	"iconserve/internal/ratelimit"
	"iconserve/internal/search"
	"iconserve/internal/sourcecfg"
	"iconserve/internal/transform"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	kv, err := sqlitekv.Open(cfg.KVDatabasePath)
	if err != nil {
		logger.Fatal("kv store", zap.Error(err))
	}
	defer kv.Close()

	blobBackend := fsblob.New(cfg.DevBlobRoot)

	reg := metrics.New()

	indexStore := indexstore.New(kv, logger, cfg.BreakerThreshold, cfg.BreakerOpenTimeout)
	blobStore := blobstore.New(blobBackend, logger, cfg.BlobPoolSize, cfg.BreakerThreshold, cfg.BreakerOpenTimeout, cfg.CoalesceTimeout,
		blobstore.WithMetricsHook(func(op string, durationMS float64, bytes int, hit bool) {
			reg.Observe("blobstore_"+op, durationMS)
			reg.Bytes("in", int64(bytes))
			if hit {
				reg.CacheHit("origin", op)
			} else {
				reg.CacheMiss("origin", op)
			}
		}),
	)
	memory := cachetier.NewMemory(cfg.MemoryCacheCapacity, cfg.MemoryCacheTTL)
	xformCache := transform.NewResultCache(cfg.TransformCacheCapacity)

	sources := sourcecfg.Defaults()
	if overrideFile := os.Getenv("ICONSERVE_SOURCES_FILE"); overrideFile != "" {
		raw, rerr := os.ReadFile(overrideFile)
		if rerr != nil {
			logger.Fatal("sources file", zap.Error(rerr))
		}
		override, perr := sourcecfg.ParseYAML(raw)
		if perr != nil {
			logger.Fatal("sources file parse", zap.Error(perr))
		}
		sources = sourcecfg.Merge(sources, override)
	}

	svc := iconsvc.New(indexStore, blobStore, memory, xformCache, sources, reg, logger, cfg.CoalesceTimeout)
	svc.StartSweeper(30 * time.Second)
	defer svc.Stop()

	searchCache := search.NewResultCache(cfg.SearchCacheCapacity, cfg.SearchCacheTTL)
	limiter := ratelimit.New(cfg.RateLimitPerMinute)

	srv := api.New(svc, searchCache, reg, limiter, cachetier.NoopEdge{}, cfg.AllowedOrigins, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed, forcing close", zap.Error(err))
		_ = httpSrv.Close()
	}
}
