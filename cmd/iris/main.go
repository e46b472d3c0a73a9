// Package main wires together the fetch service binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/r3co87/iris/internal/api"
	"github.com/r3co87/iris/internal/cache"
	"github.com/r3co87/iris/internal/clock/system"
	"github.com/r3co87/iris/internal/config"
	"github.com/r3co87/iris/internal/driver/chromedp"
	"github.com/r3co87/iris/internal/extract/html"
	"github.com/r3co87/iris/internal/fetch"
	"github.com/r3co87/iris/internal/logging"
	"github.com/r3co87/iris/internal/metrics"
	"github.com/r3co87/iris/internal/ratelimit"
	"github.com/r3co87/iris/internal/robots"
	redisstore "github.com/r3co87/iris/internal/store/redis"
)

// version is set at build time via -ldflags; "dev" for local/unreleased builds.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	redisClient, err := redisstore.NewClient(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, running with cache/rate-limit/robots degraded", zap.Error(err))
		redisClient = nil
	}

	drv, err := chromedp.New(cfg.UserAgent, cfg.Headless)
	if err != nil {
		logger.Fatal("driver init failed", zap.Error(err))
	}

	clk := system.New()
	limiter := ratelimit.New(redisClient, cfg.RateLimitBurst, cfg.MinDelayBetweenRequests, logger.Named("ratelimit"))
	robotsPolicy := robots.New(cfg.RespectRobotsTxt, cfg.UserAgent, redisClient, cfg.RobotsTxtCacheTTL, logger.Named("robots"))
	cacheSt := cache.New(redisClient, cfg.CacheEnabled, cfg.CacheTTL, logger.Named("cache"))
	extractor := html.New()

	fetcher := fetch.New(cfg, logger.Named("fetch"), drv, limiter, robotsPolicy, cacheSt, extractor, clk)

	apiServer := api.NewServer(fetcher, cacheSt, drv, logger.Named("api"), cfg, version)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := drv.Close(shutdownCtx); err != nil {
		logger.Error("driver shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
