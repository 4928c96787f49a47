// Package main is the entry point for the sweep worker process.
//
// The worker long-polls the SQS dispatch queue and routes each message
// through the task multiplexer to the service that executes it: cohort and
// uniform enqueue passes, the weekly remediation sweep, the stuck-job
// liveness sweep, and the retention purge. This is where all the database
// work happens; the scheduler process only sends the trigger messages.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"valdrix/internal/carbon"
	"valdrix/internal/config"
	"valdrix/internal/db"
	"valdrix/internal/entitlement"
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
	logger.Info("sweep worker starting",
		"environment", cfg.Environment,
		"queue", cfg.AWS.DispatchQueueURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

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
	entitlements := entitlement.NewStaticRegistry()

	var fetcher carbon.IntensityFetcher
	if cfg.Carbon.APIToken != "" {
		fetcher = carbon.NewIntensityClient(cfg.Carbon, logger)
	} else {
		logger.Warn("no carbon api token configured, using time-of-day heuristic only")
	}
	evaluator := carbon.NewEvaluator(fetcher, cfg.Carbon.GreenThreshold, cfg.Carbon.CacheTTL, logger)

	enqueueDB := enqueueStoreAdapter{store: db.NewEnqueueStore(pool)}
	jobRepo := db.NewJobRepository(pool)

	sched := cfg.Scheduler
	cohorts := scheduler.NewCohortEnqueuer(enqueueDB, entitlements, recorder, logger,
		sched.ChunkSize, sched.ClaimBatchSize, sched.MaxAttempts, sched.BackoffBase)
	remediation := scheduler.NewRemediationEnqueuer(enqueueDB, evaluator, recorder, logger,
		sched.ChunkSize, sched.ClaimBatchSize, sched.MaxAttempts, sched.BackoffBase, sched.CarbonDeferral)
	stuck := scheduler.NewStuckJobDetector(jobRepoAdapter{repo: jobRepo}, recorder, logger, sched.StuckThreshold)
	maintenance := scheduler.NewMaintenanceService(jobRepo, recorder, logger, sched.JobRetention)

	mux := scheduler.NewTaskMux(cohorts, remediation, stuck, maintenance, logger)
	consumer := queue.NewConsumer(sqsClient, cfg.AWS.DispatchQueueURL, mux.Handle, logger)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	router.Method(http.MethodGet, "/metrics", recorder.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consumer loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("sweep worker stopped")
	return nil
}

// enqueueStoreAdapter narrows *db.EnqueueStore's concrete transaction type
// to the scheduler.EnqueueDB interface.
type enqueueStoreAdapter struct {
	store *db.EnqueueStore
}

func (a enqueueStoreAdapter) Begin(ctx context.Context) (scheduler.EnqueueTx, error) {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// jobRepoAdapter does the same for the stuck-job sweep transactions.
type jobRepoAdapter struct {
	repo *db.JobRepository
}

func (a jobRepoAdapter) Begin(ctx context.Context) (scheduler.SweepTx, error) {
	tx, err := a.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
