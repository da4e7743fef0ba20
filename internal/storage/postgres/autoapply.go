package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/shared/postgresql"
)

// List settings are stored comma separated, the way the product's settings screen saves them
type configRow struct {
	UserID                string    `db:"user_id"`
	IsEnabled             bool      `db:"is_enabled"`
	DailyLimit            int       `db:"daily_limit"`
	MonthlyLimit          int       `db:"monthly_limit"`
	ApplicationsToday     int       `db:"applications_today"`
	ApplicationsThisMonth int       `db:"applications_this_month"`
	MatchThreshold        int       `db:"match_threshold"`
	Keywords              string    `db:"keywords"`
	ExcludedKeywords      string    `db:"excluded_keywords"`
	Locations             string    `db:"locations"`
	Industries            string    `db:"industries"`
	JobTypes              string    `db:"job_types"`
	ExperienceMax         int       `db:"experience_max"`
	SalaryMin             int       `db:"salary_min"`
	ExcludedCompanies     string    `db:"excluded_companies"`
	DefaultResumeID       string    `db:"default_resume_id"`
	DefaultCoverLetterID  string    `db:"default_cover_letter_id"`
	UpdatedAt             time.Time `db:"updated_at"`
}

func (r *configRow) toDomain() *domain.AutoApplyConfig {
	var jobTypes []domain.JobType
	for _, t := range domain.SplitList(r.JobTypes) {
		jobTypes = append(jobTypes, domain.JobType(strings.ToUpper(t)))
	}
	return &domain.AutoApplyConfig{
		UserID:                r.UserID,
		IsEnabled:             r.IsEnabled,
		DailyLimit:            r.DailyLimit,
		MonthlyLimit:          r.MonthlyLimit,
		ApplicationsToday:     r.ApplicationsToday,
		ApplicationsThisMonth: r.ApplicationsThisMonth,
		MatchThreshold:        r.MatchThreshold,
		Keywords:              domain.SplitList(r.Keywords),
		ExcludedKeywords:      domain.SplitList(r.ExcludedKeywords),
		Locations:             domain.SplitList(r.Locations),
		Industries:            domain.SplitList(r.Industries),
		JobTypes:              jobTypes,
		ExperienceMax:         r.ExperienceMax,
		SalaryMin:             r.SalaryMin,
		ExcludedCompanies:     domain.SplitList(r.ExcludedCompanies),
		DefaultResumeID:       r.DefaultResumeID,
		DefaultCoverLetterID:  r.DefaultCoverLetterID,
		UpdatedAt:             r.UpdatedAt,
	}
}

// ConfigRepository reads auto-apply configs and maintains their quota counters
type ConfigRepository struct {
	db *sqlx.DB
}

func NewConfigRepository(pg *postgresql.Client) *ConfigRepository {
	return &ConfigRepository{db: pg.GetDB()}
}

func (r *ConfigRepository) Get(ctx context.Context, userID string) (*domain.AutoApplyConfig, error) {
	var row configRow
	query := `
		SELECT
			user_id, is_enabled, daily_limit, monthly_limit, applications_today,
			applications_this_month, match_threshold, keywords, excluded_keywords,
			locations, industries, job_types, experience_max, salary_min,
			excluded_companies, default_resume_id, default_cover_letter_id, updated_at
		FROM auto_apply_configs
		WHERE user_id = $1`

	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get auto-apply config: %w", err)
	}
	return row.toDomain(), nil
}

func (r *ConfigRepository) ListEnabledUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT user_id FROM auto_apply_configs WHERE is_enabled ORDER BY user_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list enabled configs: %w", err)
	}
	return ids, nil
}

// ReserveApplication takes one slot of both quotas in a single conditional update,
// so concurrent platforms and runs cannot apply past the caps. It reports false when a cap is met.
func (r *ConfigRepository) ReserveApplication(ctx context.Context, userID string) (bool, error) {
	query := `
		UPDATE auto_apply_configs
		SET applications_today = applications_today + 1,
		    applications_this_month = applications_this_month + 1,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND (daily_limit = 0 OR applications_today < daily_limit)
		  AND (monthly_limit = 0 OR applications_this_month < monthly_limit)`
	err := r.exec(ctx, query, userID)
	if !errors.Is(err, domain.ErrConfigNotFound) {
		return err == nil, err
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM auto_apply_configs WHERE user_id = $1)`, userID); err != nil {
		return false, fmt.Errorf("failed to check auto-apply config: %w", err)
	}
	if !exists {
		return false, domain.ErrConfigNotFound
	}
	return false, nil
}

// ReleaseApplication gives back a slot reserved for an application that did not go through
func (r *ConfigRepository) ReleaseApplication(ctx context.Context, userID string) error {
	query := `
		UPDATE auto_apply_configs
		SET applications_today = GREATEST(applications_today - 1, 0),
		    applications_this_month = GREATEST(applications_this_month - 1, 0),
		    updated_at = NOW()
		WHERE user_id = $1`
	return r.exec(ctx, query, userID)
}

func (r *ConfigRepository) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	query := `UPDATE auto_apply_configs SET is_enabled = $2, updated_at = NOW() WHERE user_id = $1`
	return r.exec(ctx, query, userID, enabled)
}

func (r *ConfigRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update auto-apply config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update auto-apply config: %w", err)
	}
	if n == 0 {
		return domain.ErrConfigNotFound
	}
	return nil
}

func (r *ConfigRepository) ResetDaily(ctx context.Context) (int64, error) {
	return r.reset(ctx, `UPDATE auto_apply_configs SET applications_today = 0 WHERE applications_today <> 0`)
}

func (r *ConfigRepository) ResetMonthly(ctx context.Context) (int64, error) {
	return r.reset(ctx, `UPDATE auto_apply_configs SET applications_this_month = 0 WHERE applications_this_month <> 0`)
}

func (r *ConfigRepository) reset(ctx context.Context, query string) (int64, error) {
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset counters: %w", err)
	}
	return res.RowsAffected()
}

type historyRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	JobID      string    `db:"job_id"`
	Platform   string    `db:"platform"`
	ListingID  string    `db:"listing_id"`
	Status     string    `db:"status"`
	Reason     string    `db:"reason"`
	Message    string    `db:"message"`
	MatchScore *int      `db:"match_score"`
	CreatedAt  time.Time `db:"created_at"`
}

// HistoryRepository is the append-only auto-apply audit log. It has no update or delete.
type HistoryRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(pg *postgresql.Client) *HistoryRepository {
	return &HistoryRepository{db: pg.GetDB()}
}

func (r *HistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO auto_apply_history (
			id, user_id, job_id, platform, listing_id,
			status, reason, message, match_score, created_at
		) VALUES (
			:id, :user_id, :job_id, :platform, :listing_id,
			:status, :reason, :message, :match_score, :created_at
		)`

	row := historyRow{
		ID:         entry.ID,
		UserID:     entry.UserID,
		JobID:      entry.JobID,
		Platform:   string(entry.Platform),
		ListingID:  entry.ListingID,
		Status:     string(entry.Status),
		Reason:     string(entry.Reason),
		Message:    entry.Message,
		MatchScore: entry.MatchScore,
		CreatedAt:  entry.CreatedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// ListByUser returns entries newest first, strictly after the cursor position
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, after *domain.PageCursor, limit int) ([]*domain.HistoryEntry, error) {
	query := `
		SELECT
			id, user_id, job_id, platform, listing_id,
			status, reason, message, match_score, created_at
		FROM auto_apply_history
		WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if after != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, after.CreatedAt, after.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	out := make([]*domain.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.HistoryEntry{
			ID:         row.ID,
			UserID:     row.UserID,
			JobID:      row.JobID,
			Platform:   domain.Platform(row.Platform),
			ListingID:  row.ListingID,
			Status:     domain.HistoryStatus(row.Status),
			Reason:     domain.HistoryReason(row.Reason),
			Message:    row.Message,
			MatchScore: row.MatchScore,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}
