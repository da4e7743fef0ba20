package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/shared/postgresql"
)

type documentRow struct {
	ID         string `db:"id"`
	UserID     string `db:"user_id"`
	Type       string `db:"type"`
	Name       string `db:"name"`
	URL        string `db:"url"`
	Content    string `db:"content"`
	UsageCount int    `db:"usage_count"`
	IsDefault  bool   `db:"is_default"`
}

func (r *documentRow) toDomain() *domain.Document {
	return &domain.Document{
		ID:         r.ID,
		UserID:     r.UserID,
		Type:       domain.DocumentType(r.Type),
		Name:       r.Name,
		URL:        r.URL,
		Content:    r.Content,
		UsageCount: r.UsageCount,
		IsDefault:  r.IsDefault,
	}
}

const documentColumns = `id, user_id, type, name, url, content, usage_count, is_default`

// DocumentRepository looks up résumés and cover letters
type DocumentRepository struct {
	db *sqlx.DB
}

func NewDocumentRepository(pg *postgresql.Client) *DocumentRepository {
	return &DocumentRepository{db: pg.GetDB()}
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.Document, error) {
	var row documentRow
	err := r.db.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toDomain(), nil
}

// GetDefault returns nil without error when the user has no default document of that type
func (r *DocumentRepository) GetDefault(ctx context.Context, userID string, docType domain.DocumentType) (*domain.Document, error) {
	var row documentRow
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1 AND type = $2 AND is_default
		LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, userID, string(docType)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default document: %w", err)
	}
	return row.toDomain(), nil
}

func (r *DocumentRepository) IncrementUsage(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment document usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// JobBoard mirrors successful external applications into the product's own tables
type JobBoard struct {
	db *sqlx.DB
}

func NewJobBoard(pg *postgresql.Client) *JobBoard {
	return &JobBoard{db: pg.GetDB()}
}

func (b *JobBoard) CreateJob(ctx context.Context, posting *domain.JobPosting) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO job_postings (
			id, platform, external_id, title, company_name,
			location, description, url, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)`

	_, err := b.db.ExecContext(ctx, query,
		id,
		string(posting.Platform),
		posting.ExternalID,
		posting.Title,
		posting.CompanyName,
		posting.Location,
		posting.Description,
		posting.URL,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job posting: %w", err)
	}
	return id, nil
}

func (b *JobBoard) Apply(ctx context.Context, app *domain.Application) error {
	query := `
		INSERT INTO applications (
			id, user_id, job_id, cover_letter, resume_url, source, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)`

	_, err := b.db.ExecContext(ctx, query,
		uuid.NewString(),
		app.UserID,
		app.JobID,
		app.CoverLetter,
		app.ResumeURL,
		app.Source,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// UserRepository reads the subscription tier of product users
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(pg *postgresql.Client) *UserRepository {
	return &UserRepository{db: pg.GetDB()}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var row struct {
		ID               string `db:"id"`
		SubscriptionTier string `db:"subscription_tier"`
	}
	if err := r.db.GetContext(ctx, &row, `SELECT id, subscription_tier FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &domain.User{ID: row.ID, SubscriptionTier: domain.SubscriptionTier(row.SubscriptionTier)}, nil
}
