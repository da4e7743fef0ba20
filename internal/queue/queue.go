package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/google/uuid"
)

// Repository persists scraper jobs. Transition methods are conditional updates:
// they return domain.ErrJobAlreadyClaimed when the row is not in the expected state.
type Repository interface {
	Create(ctx context.Context, job *domain.ScraperJob) error
	Get(ctx context.Context, id string) (*domain.ScraperJob, error)
	ListClaimable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*domain.ScraperJob, error)
	MarkProcessing(ctx context.Context, id string, now time.Time, maxRetries int) (*domain.ScraperJob, error)
	MarkCompleted(ctx context.Context, id string, result json.RawMessage, now time.Time) error
	MarkFailed(ctx context.Context, id string, expected domain.JobStatus, expectedRetry int, f domain.JobFailure) error
	ResetToPending(ctx context.Context, id string, now time.Time) (*domain.ScraperJob, error)
	Heartbeat(ctx context.Context, id string, now time.Time) error
	ListStaleProcessing(ctx context.Context, before time.Time) ([]*domain.ScraperJob, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Notifier tells workers a job is ready to be picked up
type Notifier interface {
	NotifyJob(ctx context.Context, jobID string) error
}

// Config holds retry settings
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Queue implements the scraper job state machine:
// PENDING -> PROCESSING -> COMPLETED | FAILED, FAILED re-selectable while under MaxRetries.
type Queue struct {
	repo     Repository
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	return c
}

// Validate rejects a MaxDelay that would cap a retry before the last one, since every
// backoff must be longer than the one before it. Zero MaxDelay means uncapped.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.MaxDelay <= 0 {
		return nil
	}
	// the last scheduled retry follows failure MaxRetries-1
	longest := c.BaseDelay
	for i := 2; i < c.MaxRetries && longest <= c.MaxDelay; i++ {
		longest *= 2
	}
	if longest > c.MaxDelay {
		return fmt.Errorf("queue max_delay %s must be at least base_delay * 2^(max_retries-2) so every backoff keeps growing", c.MaxDelay)
	}
	return nil
}

// New creates a job queue. notifier may be nil, in which case jobs are only found by polling.
func New(repo Repository, notifier Notifier, cfg Config, logger *slog.Logger) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// MaxRetries returns the retry ceiling
func (q *Queue) MaxRetries() int {
	return q.cfg.MaxRetries
}

// Backoff returns the delay before retry number retryCount (1-based)
func (q *Queue) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := q.cfg.BaseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if q.cfg.MaxDelay > 0 && delay >= q.cfg.MaxDelay {
			return q.cfg.MaxDelay
		}
	}
	return delay
}

// Enqueue records a new PENDING job for the action
func (q *Queue) Enqueue(ctx context.Context, userID string, platform domain.Platform, action domain.Action, isAutoApply bool) (*domain.ScraperJob, error) {
	params, err := domain.EncodeAction(action)
	if err != nil {
		return nil, err
	}

	now := q.now()
	job := &domain.ScraperJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Platform:    platform,
		IsAutoApply: isAutoApply,
		Status:      domain.JobStatusPending,
		RetryCount:  0,
		Parameters:  params,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	q.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("user_id", userID),
		slog.String("platform", platform.String()),
		slog.String("action", string(action.Kind())),
		slog.Bool("auto_apply", isAutoApply),
	)

	// Auto-apply jobs are executed inline by the orchestrator
	if !isAutoApply {
		q.notify(ctx, job.ID)
	}

	return job, nil
}

func (q *Queue) notify(ctx context.Context, jobID string) {
	if q.notifier == nil {
		return
	}
	if err := q.notifier.NotifyJob(ctx, jobID); err != nil {
		q.logger.Warn("Failed to notify workers, job will be picked up by polling",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns a job by id
func (q *Queue) Get(ctx context.Context, id string) (*domain.ScraperJob, error) {
	return q.repo.Get(ctx, id)
}

// ClaimNext returns up to limit PENDING jobs and FAILED jobs whose retry time has elapsed, oldest first
func (q *Queue) ClaimNext(ctx context.Context, limit int) ([]*domain.ScraperJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	jobs, err := q.repo.ListClaimable(ctx, q.now(), q.cfg.MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable jobs: %w", err)
	}
	return jobs, nil
}

// MarkProcessing claims the job for the caller
func (q *Queue) MarkProcessing(ctx context.Context, id string) (*domain.ScraperJob, error) {
	job, err := q.repo.MarkProcessing(ctx, id, q.now(), q.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}
	q.logger.Debug("Job marked processing", slog.String("job_id", id))
	return job, nil
}

// MarkCompleted stores the result and ends the job
func (q *Queue) MarkCompleted(ctx context.Context, id string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	if err := q.repo.MarkCompleted(ctx, id, raw, q.now()); err != nil {
		return err
	}
	q.logger.Info("Job completed", slog.String("job_id", id))
	return nil
}

// MarkFailed records a failed attempt and schedules the next one with exponential backoff.
// Once the retry ceiling is reached the job stays FAILED for good.
func (q *Queue) MarkFailed(ctx context.Context, id, message string) (*domain.ScraperJob, error) {
	return q.fail(ctx, id, message, false)
}

// MarkFailedPermanent fails the job and makes it terminal regardless of retries left
func (q *Queue) MarkFailedPermanent(ctx context.Context, id, message string) (*domain.ScraperJob, error) {
	return q.fail(ctx, id, message, true)
}

func (q *Queue) fail(ctx context.Context, id, message string, permanent bool) (*domain.ScraperJob, error) {
	job, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.JobStatusCompleted {
		return nil, fmt.Errorf("cannot fail completed job %s: %w", id, domain.ErrJobAlreadyClaimed)
	}

	now := q.now()
	f := domain.JobFailure{
		RetryCount: min(job.RetryCount+1, q.cfg.MaxRetries),
		Message:    message,
		FailedAt:   now,
	}
	if permanent {
		f.RetryCount = q.cfg.MaxRetries
	}
	if f.RetryCount < q.cfg.MaxRetries {
		next := now.Add(q.Backoff(f.RetryCount))
		f.NextRetryAt = &next
	}

	if err := q.repo.MarkFailed(ctx, id, job.Status, job.RetryCount, f); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatusFailed
	job.RetryCount = f.RetryCount
	job.NextRetryAt = f.NextRetryAt
	job.ErrorMessage = message
	job.CompletedAt = &now
	job.UpdatedAt = now

	if f.NextRetryAt != nil {
		q.logger.Warn("Job failed, retry scheduled",
			slog.String("job_id", id),
			slog.Int("retry_count", f.RetryCount),
			slog.Int("max_retries", q.cfg.MaxRetries),
			slog.Time("next_retry_at", *f.NextRetryAt),
			slog.String("error", message),
		)
	} else {
		q.logger.Warn("Job failed permanently",
			slog.String("job_id", id),
			slog.Int("retry_count", f.RetryCount),
			slog.String("error", message),
		)
	}
	return job, nil
}

// Retry resets a FAILED job to PENDING immediately, ignoring its retry timer
func (q *Queue) Retry(ctx context.Context, id string) (*domain.ScraperJob, error) {
	job, err := q.repo.ResetToPending(ctx, id, q.now())
	if err != nil {
		return nil, err
	}
	q.logger.Info("Job reset for retry",
		slog.String("job_id", id),
		slog.Int("retry_count", job.RetryCount),
	)
	q.notify(ctx, id)
	return job, nil
}

// Heartbeat refreshes the liveness timestamp of a PROCESSING job
func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	return q.repo.Heartbeat(ctx, id, q.now())
}

// RecoverStale fails PROCESSING jobs whose worker stopped heartbeating so they re-enter retry selection
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := q.repo.ListStaleProcessing(ctx, q.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	recovered := 0
	for _, job := range stale {
		if _, err := q.MarkFailed(ctx, job.ID, "worker heartbeat lost"); err != nil {
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				continue
			}
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		q.logger.Info("Recovered stale jobs", slog.Int("count", recovered))
	}
	return recovered, nil
}

// Cleanup deletes COMPLETED jobs older than the retention horizon. FAILED and PENDING jobs are never touched.
func (q *Queue) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days must not be negative: %d", retentionDays)
	}
	before := q.now().AddDate(0, 0, -retentionDays)
	deleted, err := q.repo.DeleteCompletedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed jobs: %w", err)
	}
	q.logger.Info("Completed jobs cleaned up",
		slog.Int64("deleted", deleted),
		slog.Int("retention_days", retentionDays),
	)
	return deleted, nil
}
