package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// RetryableError marks a failure that happened before the job outcome could be stored.
// The broker message is requeued so the job is not lost.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return

		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg := <-w.jobsChan:
			err := w.processJob(ctx, msg)
			if err != nil {
				logger.Error("Job processing failed",
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)
			}
			w.settle(logger, msg, err)
		}
	}
}

// settle acknowledges broker messages once the job outcome is stored
func (w *Worker) settle(logger *slog.Logger, msg *JobMessage, err error) {
	if !msg.FromBroker || w.broker == nil {
		return
	}

	if err == nil {
		if ackErr := w.broker.Ack(msg.DeliveryTag); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("job_id", msg.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeueJob(err)
	if nackErr := w.broker.Nack(msg.DeliveryTag, requeue); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.String("job_id", msg.JobID),
			slog.String("error", nackErr.Error()),
		)
		return
	}
	logger.Info("Message NACKed",
		slog.String("job_id", msg.JobID),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func shouldRequeueJob(err error) bool {
	if errors.Is(err, domain.ErrJobAlreadyClaimed) || errors.Is(err, domain.ErrJobNotFound) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
