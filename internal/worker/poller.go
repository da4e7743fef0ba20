package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// startRetryPoller feeds the pool with PENDING jobs and FAILED jobs whose backoff elapsed
func (w *Worker) startRetryPoller(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) int {
	jobs, err := w.jobs.ClaimNext(ctx, w.pollBatchSize)
	if err != nil {
		w.logger.Error("Failed to poll claimable jobs", slog.String("error", err.Error()))
		return 0
	}

	dispatched := 0
	for _, job := range jobs {
		// a PENDING auto-apply job is about to be run inline by its orchestrator
		if job.IsAutoApply && job.Status == domain.JobStatusPending {
			continue
		}
		select {
		case w.jobsChan <- &JobMessage{JobID: job.ID}:
			dispatched++
		case <-ctx.Done():
			return dispatched
		}
	}

	if dispatched > 0 {
		w.logger.Debug("Polled jobs dispatched", slog.Int("count", dispatched))
	}
	return dispatched
}
