// Package worker executes scraper jobs outside the request path. Jobs arrive from
// RabbitMQ and from a poller that re-selects FAILED jobs whose backoff elapsed.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobQueue is the scraper job state machine
type JobQueue interface {
	ClaimNext(ctx context.Context, limit int) ([]*domain.ScraperJob, error)
	MarkProcessing(ctx context.Context, id string) (*domain.ScraperJob, error)
	MarkCompleted(ctx context.Context, id string, result any) error
	MarkFailed(ctx context.Context, id, message string) (*domain.ScraperJob, error)
	MarkFailedPermanent(ctx context.Context, id, message string) (*domain.ScraperJob, error)
	Heartbeat(ctx context.Context, id string) error
}

type SessionSource interface {
	GetActive(ctx context.Context, userID string, p domain.Platform) (*domain.Session, error)
}

type Adapters interface {
	Get(p domain.Platform) (platform.Adapter, error)
}

// Broker delivers job ids and settles them
type Broker interface {
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	WorkerID          string
	Jobs              JobQueue
	Sessions          SessionSource
	Adapters          Adapters
	Broker            Broker
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	PollBatchSize     int
}

// Worker represents the background job worker
type Worker struct {
	logger            *slog.Logger
	workerID          string
	jobs              JobQueue
	sessions          SessionSource
	adapters          Adapters
	broker            Broker
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	pollInterval      time.Duration
	pollBatchSize     int

	jobsChan chan *JobMessage
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// JobMessage is one job handed to the pool. DeliveryTag is zero for polled jobs.
type JobMessage struct {
	JobID       string
	DeliveryTag uint64
	FromBroker  bool
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = cfg.Concurrency
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.PollBatchSize <= 0 {
		cfg.PollBatchSize = cfg.Concurrency
	}
	return &Worker{
		logger:            cfg.Logger.With(slog.String("worker_id", cfg.WorkerID)),
		workerID:          cfg.WorkerID,
		jobs:              cfg.Jobs,
		sessions:          cfg.Sessions,
		adapters:          cfg.Adapters,
		broker:            cfg.Broker,
		concurrency:       cfg.Concurrency,
		prefetchCount:     cfg.PrefetchCount,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		pollInterval:      cfg.PollInterval,
		pollBatchSize:     cfg.PollBatchSize,
		jobsChan:          make(chan *JobMessage, cfg.Concurrency),
		stopChan:          make(chan struct{}),
	}
}

// Start runs the pool, the broker dispatcher and the retry poller until ctx is done
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("poll_interval", w.pollInterval),
	)

	w.spawnWorkerPool(ctx)

	if w.broker != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			return err
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.startMessageDispatcher(ctx, deliveries)
		}()
	} else {
		w.logger.Warn("No broker configured, jobs are picked up by polling only")
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startRetryPoller(ctx)
	}()

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("Worker stopped")
	})
}
