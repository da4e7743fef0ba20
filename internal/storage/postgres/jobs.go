package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/shared/postgresql"
)

type jobRow struct {
	ID              string     `db:"id"`
	UserID          string     `db:"user_id"`
	Platform        string     `db:"platform"`
	IsAutoApply     bool       `db:"is_auto_apply"`
	Status          string     `db:"status"`
	RetryCount      int        `db:"retry_count"`
	NextRetryAt     *time.Time `db:"next_retry_at"`
	Parameters      []byte     `db:"parameters"`
	Result          []byte     `db:"result"`
	ErrorMessage    string     `db:"error_message"`
	CreatedAt       time.Time  `db:"created_at"`
	StartedAt       *time.Time `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	LastHeartbeatAt *time.Time `db:"last_heartbeat_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

const jobColumns = `
	id, user_id, platform, is_auto_apply, status, retry_count, next_retry_at,
	parameters, result, error_message, created_at, started_at, completed_at,
	last_heartbeat_at, updated_at`

func (r *jobRow) toDomain() *domain.ScraperJob {
	return &domain.ScraperJob{
		ID:              r.ID,
		UserID:          r.UserID,
		Platform:        domain.Platform(r.Platform),
		IsAutoApply:     r.IsAutoApply,
		Status:          domain.JobStatus(r.Status),
		RetryCount:      r.RetryCount,
		NextRetryAt:     r.NextRetryAt,
		Parameters:      json.RawMessage(r.Parameters),
		Result:          json.RawMessage(r.Result),
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		LastHeartbeatAt: r.LastHeartbeatAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// JobRepository stores scraper jobs. Every transition is a single guarded
// UPDATE so concurrent workers cannot both win a claim.
type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(pg *postgresql.Client) *JobRepository {
	return &JobRepository{db: pg.GetDB()}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.ScraperJob) error {
	query := `
		INSERT INTO scraper_jobs (
			id, user_id, platform, is_auto_apply, status, retry_count,
			parameters, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9
		)`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.UserID,
		string(job.Platform),
		job.IsAutoApply,
		string(job.Status),
		job.RetryCount,
		[]byte(job.Parameters),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.ScraperJob, error) {
	var row jobRow
	query := `SELECT` + jobColumns + ` FROM scraper_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

func (r *JobRepository) ListClaimable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*domain.ScraperJob, error) {
	query := `SELECT` + jobColumns + `
		FROM scraper_jobs
		WHERE status = 'PENDING'
		   OR (status = 'FAILED' AND retry_count < $2 AND next_retry_at <= $1)
		ORDER BY created_at, id
		LIMIT $3`
	return r.list(ctx, query, now, maxRetries, limit)
}

func (r *JobRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ScraperJob, error) {
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	out := make([]*domain.ScraperJob, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *JobRepository) MarkProcessing(ctx context.Context, id string, now time.Time, maxRetries int) (*domain.ScraperJob, error) {
	query := `
		UPDATE scraper_jobs
		SET status = 'PROCESSING', started_at = $2, last_heartbeat_at = $2,
		    next_retry_at = NULL, updated_at = $2
		WHERE id = $1
		  AND (status = 'PENDING'
		       OR (status = 'FAILED' AND retry_count < $3 AND next_retry_at <= $2))
		RETURNING` + jobColumns

	var row jobRow
	if err := r.db.GetContext(ctx, &row, query, id, now, maxRetries); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOr(ctx, id, domain.ErrJobAlreadyClaimed)
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return row.toDomain(), nil
}

// missOr tells a missing row apart from a guard that did not match
func (r *JobRepository) missOr(ctx context.Context, id string, guardErr error) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM scraper_jobs WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return guardErr
}

func (r *JobRepository) guarded(ctx context.Context, id string, guardErr error, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n == 0 {
		return r.missOr(ctx, id, guardErr)
	}
	return nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result json.RawMessage, now time.Time) error {
	query := `
		UPDATE scraper_jobs
		SET status = 'COMPLETED', result = $2, error_message = '',
		    completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'PROCESSING'`
	return r.guarded(ctx, id, domain.ErrJobAlreadyClaimed, query, id, []byte(result), now)
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, expected domain.JobStatus, expectedRetry int, f domain.JobFailure) error {
	query := `
		UPDATE scraper_jobs
		SET status = 'FAILED', retry_count = $4, next_retry_at = $5, error_message = $6,
		    result = NULL, completed_at = $7, updated_at = $7
		WHERE id = $1 AND status = $2 AND retry_count = $3`
	return r.guarded(ctx, id, domain.ErrJobAlreadyClaimed, query,
		id, string(expected), expectedRetry, f.RetryCount, f.NextRetryAt, f.Message, f.FailedAt)
}

func (r *JobRepository) ResetToPending(ctx context.Context, id string, now time.Time) (*domain.ScraperJob, error) {
	query := `
		UPDATE scraper_jobs
		SET status = 'PENDING', next_retry_at = NULL, error_message = '',
		    started_at = NULL, completed_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'FAILED'
		RETURNING` + jobColumns

	var row jobRow
	if err := r.db.GetContext(ctx, &row, query, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOr(ctx, id, domain.ErrJobNotFailed)
		}
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}
	return row.toDomain(), nil
}

// Heartbeat touches PROCESSING jobs only; a heartbeat for a job that already
// finished is not an error.
func (r *JobRepository) Heartbeat(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE scraper_jobs
		SET last_heartbeat_at = $2
		WHERE id = $1 AND status = 'PROCESSING'`
	return r.guarded(ctx, id, nil, query, id, now)
}

func (r *JobRepository) ListStaleProcessing(ctx context.Context, before time.Time) ([]*domain.ScraperJob, error) {
	query := `SELECT` + jobColumns + `
		FROM scraper_jobs
		WHERE status = 'PROCESSING' AND COALESCE(last_heartbeat_at, updated_at) < $1
		ORDER BY created_at`
	return r.list(ctx, query, before)
}

func (r *JobRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scraper_jobs WHERE status = 'COMPLETED' AND created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	return res.RowsAffected()
}
