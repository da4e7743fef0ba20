package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

// processJob claims and executes one job. A nil return means the outcome is stored
// on the job row, including failed attempts that are now waiting for backoff.
func (w *Worker) processJob(ctx context.Context, msg *JobMessage) error {
	logger := w.logger.With(slog.String("job_id", msg.JobID))

	job, err := w.jobs.MarkProcessing(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			logger.Debug("Job already claimed, skipping")
			return fmt.Errorf("job already claimed: %w", err)
		}
		if errors.Is(err, domain.ErrJobNotFound) {
			return err
		}
		return &RetryableError{Err: fmt.Errorf("failed to claim job: %w", err)}
	}

	logger = logger.With(
		slog.String("platform", job.Platform.String()),
		slog.String("user_id", job.UserID),
	)

	action, err := job.Action()
	if err != nil {
		w.fail(ctx, logger, job.ID, err)
		return err
	}

	adapter, err := w.adapters.Get(job.Platform)
	if err != nil {
		w.fail(ctx, logger, job.ID, err)
		return nil
	}

	sess, err := w.sessions.GetActive(ctx, job.UserID, job.Platform)
	if err != nil {
		w.fail(ctx, logger, job.ID, err)
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)

	start := time.Now()
	result, err := platform.Execute(jobCtx, adapter, sess, action)
	close(heartbeatDone)

	if err != nil {
		w.fail(ctx, logger, job.ID, err)
		return nil
	}

	if err := w.jobs.MarkCompleted(context.WithoutCancel(ctx), job.ID, result); err != nil {
		return &RetryableError{Err: fmt.Errorf("failed to complete job: %w", err)}
	}

	logger.Info("Job executed",
		slog.String("action", string(action.Kind())),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// fail stores a failed attempt; errors that backoff cannot fix end the job
func (w *Worker) fail(ctx context.Context, logger *slog.Logger, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	mark := w.jobs.MarkFailed
	if !domain.IsRetryable(cause) {
		mark = w.jobs.MarkFailedPermanent
	}
	if _, err := mark(ctx, jobID, cause.Error()); err != nil {
		logger.Error("Failed to mark job failed",
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
	}
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobs.Heartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
