package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/config"
	"github.com/cuongbtq/autoapply-be/internal/engine"
	"github.com/cuongbtq/autoapply-be/internal/scheduler"
	"github.com/cuongbtq/autoapply-be/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, appLogger, err := engine.Bootstrap("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml", (*config.Config).ValidateWorkerConfig)
	if err != nil {
		return err
	}
	logger := appLogger.Logger

	logger.Info("Starting worker service",
		slog.String("version", cfg.App.Version),
		slog.String("worker_id", cfg.Worker.ID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var broker worker.Broker
	if eng.Rabbit != nil {
		broker = eng.Rabbit
	}

	w := worker.NewWorker(&worker.Config{
		Logger:            logger,
		WorkerID:          cfg.Worker.ID,
		Jobs:              eng.Jobs,
		Sessions:          eng.Sessions,
		Adapters:          eng.Adapters,
		Broker:            broker,
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		PollInterval:      cfg.Worker.PollInterval,
		PollBatchSize:     cfg.Worker.PollBatchSize,
	})

	sched := newScheduler(cfg, eng)
	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			eng.Close(context.Background())
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- w.Start(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-workerErr:
		if runErr != nil {
			logger.Error("Worker error", slog.String("error", runErr.Error()))
		}
	}
	stop()

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if err := eng.Close(shutdownCtx); err != nil {
		logger.Error("Failed to release resources", slog.String("error", err.Error()))
	}

	logger.Info("Worker service stopped")
	return runErr
}

// newScheduler returns nil when scheduling is disabled
func newScheduler(cfg *config.Config, eng *engine.Engine) *scheduler.Scheduler {
	if !cfg.Scheduler.Enabled {
		eng.Logger.Info("Scheduler disabled")
		return nil
	}

	deps := scheduler.Dependencies{
		Sessions: eng.Sessions,
		Jobs:     eng.Jobs,
		Configs:  eng.Configs,
		Runner:   eng.AutoApply,
	}
	if eng.Proxies != nil {
		deps.Proxies = eng.Proxies
	}

	return scheduler.New(deps, scheduler.Config{
		Specs:            cfg.Scheduler.Specs(),
		SessionRetention: time.Duration(cfg.Sessions.RetentionDays) * 24 * time.Hour,
		JobRetentionDays: cfg.Queue.RetentionDays,
		StaleAfter:       cfg.Queue.StaleAfter,
	}, eng.Logger.With(slog.String("component", "scheduler")))
}
