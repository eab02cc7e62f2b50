package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/inbox"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg, "leadflow-scheduler")
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		panic("failed to initialize telemetry: " + err.Error())
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Error("failed to create metrics", "error", err)
		panic("failed to create metrics: " + err.Error())
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	store := repository.New(pool)

	rt, err := bootstrap.Build(ctx, cfg, store, inbox.NewPostgresRepository(pool, log), eventBus, metrics, log,
		func(ctx context.Context, svc storage.StorageService, bucket string) {
			if err := withRetry(ctx, log, "ensure analytics bucket", 5, 2*time.Second, func() error {
				return svc.EnsureBucketExists(ctx, bucket)
			}); err != nil {
				log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
				panic("failed to ensure storage bucket exists: " + err.Error())
			}
		})
	if err != nil {
		log.Error("failed to initialize follow-up module", "error", err)
		panic("failed to initialize follow-up module: " + err.Error())
	}
	defer func() { _ = rt.Close() }()

	module := rt.Module
	module.RegisterHandlers(eventBus)

	if cfg.GetRedisURL() == "" {
		// Without a broker the escalation sweep still runs in-process.
		log.Warn("REDIS_URL not configured; running in-process escalation sweep only")
		module.Scheduler().Run(ctx)
		return
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	client.RegisterHandlers(eventBus)

	dispatcher := scheduler.NewSweepDispatcher(client, store, cfg.GetSweepInterval(), cfg.GetTimezone(), log)
	go dispatcher.Run(ctx)

	var archiver scheduler.SnapshotArchiver
	if rt.Archiver != nil {
		archiver = rt.Archiver
	}

	worker, err := scheduler.NewWorker(cfg, cfg.GetTimezone(), module.Service(), module.Manager(), archiver, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
