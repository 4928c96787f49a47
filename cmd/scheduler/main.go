// Package main is the entry point for the scheduler process.
//
// The scheduler is deliberately thin: a cron runner that, on each tick, races
// replicas for a TTL'd Redis lock and fires one small dispatch message at the
// SQS task queue. All heavy work (claiming tenants, inserting jobs) happens
// in the sweep worker. The process also serves /healthz with per-entry
// last-run records and /metrics for Prometheus.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"valdrix/internal/config"
	"valdrix/internal/lock"
	"valdrix/internal/metrics"
	"valdrix/internal/queue"
	"valdrix/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("scheduler starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"lock_ttl", cfg.Scheduler.LockTTL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is optional: with no URL configured the lock manager fails open
	// and the dedup-key constraint remains the only dispatch dedup.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		opt.DialTimeout = cfg.Redis.DialTimeout
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
	} else {
		logger.Warn("no redis url configured, dispatch lock will fail open")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading aws configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	recorder := metrics.NewPrometheusRecorder()
	locks := lock.NewManager(lockClient(redisClient), cfg.IsTestMode, logger)
	trigger := queue.NewDispatchTrigger(sqsClient, cfg.AWS.DispatchQueueURL, logger)

	dispatcher := scheduler.NewDispatcher(trigger, locks, cfg.Scheduler.LockTTL, recorder, logger)
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(dispatcher, recorder),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("scheduler stopped")
	return nil
}

func newRouter(dispatcher *scheduler.Dispatcher, recorder *metrics.PrometheusRecorder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"status": "ok",
			"runs":   dispatcher.Status(),
		})
	})
	r.Method(http.MethodGet, "/metrics", recorder.Handler())

	return r
}

// lockClient keeps a nil *redis.Client from becoming a non-nil interface
// value inside the lock manager.
func lockClient(c *redis.Client) lock.RedisClient {
	if c == nil {
		return nil
	}
	return c
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
