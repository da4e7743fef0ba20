// Package postgres implements the engine's repository ports on PostgreSQL through sqlx.
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

type sessionRow struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	Platform      string     `db:"platform"`
	Status        string     `db:"status"`
	Cookies       string     `db:"cookies"`
	Headers       []byte     `db:"headers"`
	UserAgent     string     `db:"user_agent"`
	ProxyURL      string     `db:"proxy_url"`
	RequestCount  int        `db:"request_count"`
	LastRequestAt *time.Time `db:"last_request_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
	ErrorMessage  string     `db:"error_message"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

const sessionColumns = `
	id, user_id, platform, status, cookies, headers, user_agent, proxy_url,
	request_count, last_request_at, expires_at, error_message, created_at, updated_at`

func (r *sessionRow) toDomain() (*domain.Session, error) {
	s := &domain.Session{
		ID:            r.ID,
		UserID:        r.UserID,
		Platform:      domain.Platform(r.Platform),
		Status:        domain.SessionStatus(r.Status),
		Cookies:       r.Cookies,
		UserAgent:     r.UserAgent,
		ProxyURL:      r.ProxyURL,
		RequestCount:  r.RequestCount,
		LastRequestAt: r.LastRequestAt,
		ExpiresAt:     r.ExpiresAt,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if len(r.Headers) > 0 {
		if err := json.Unmarshal(r.Headers, &s.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode session headers: %w", err)
		}
	}
	return s, nil
}

// SessionRepository stores scraper sessions
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(pg *postgresql.Client) *SessionRepository {
	return &SessionRepository{db: pg.GetDB()}
}

func (r *SessionRepository) one(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return row.toDomain()
}

func (r *SessionRepository) FindActive(ctx context.Context, userID string, platform domain.Platform) (*domain.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM scraper_sessions
		WHERE user_id = $1 AND platform = $2 AND status = 'ACTIVE'`
	return r.one(ctx, query, userID, string(platform))
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM scraper_sessions WHERE id = $1`
	return r.one(ctx, query, id)
}

// Upsert inserts sess, or overwrites the credentials of the pair's ACTIVE row in
// place. The partial unique index keeps one ACTIVE row per pair under concurrent logins.
// An empty proxy keeps the row's current one.
func (r *SessionRepository) Upsert(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	headers, err := json.Marshal(sess.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session headers: %w", err)
	}
	if sess.Headers == nil {
		headers = []byte("{}")
	}

	query := `
		INSERT INTO scraper_sessions (
			id, user_id, platform, status, cookies, headers, user_agent, proxy_url,
			request_count, expires_at, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			0, $9, '', $10, $11
		)
		ON CONFLICT (user_id, platform) WHERE status = 'ACTIVE'
		DO UPDATE SET
			cookies = EXCLUDED.cookies,
			headers = EXCLUDED.headers,
			user_agent = EXCLUDED.user_agent,
			proxy_url = COALESCE(NULLIF(EXCLUDED.proxy_url, ''), scraper_sessions.proxy_url),
			expires_at = EXCLUDED.expires_at,
			error_message = '',
			updated_at = EXCLUDED.updated_at
		RETURNING` + sessionColumns

	return r.one(ctx, query,
		sess.ID,
		sess.UserID,
		string(sess.Platform),
		string(domain.SessionStatusActive),
		sess.Cookies,
		headers,
		sess.UserAgent,
		sess.ProxyURL,
		sess.ExpiresAt,
		sess.CreatedAt,
		sess.UpdatedAt,
	)
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, message string, now time.Time) error {
	query := `
		UPDATE scraper_sessions
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1`
	return r.exec(ctx, query, id, string(status), message, now)
}

func (r *SessionRepository) IncrementRequests(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE scraper_sessions
		SET request_count = request_count + 1, last_request_at = $2
		WHERE id = $1`
	return r.exec(ctx, query, id, now)
}

func (r *SessionRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE scraper_sessions
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'ACTIVE' AND expires_at <= $1`
	return r.count(ctx, query, now)
}

func (r *SessionRepository) DeleteInactiveBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM scraper_sessions WHERE status <> 'ACTIVE' AND updated_at < $1`
	return r.count(ctx, query, before)
}

func (r *SessionRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM scraper_sessions
		WHERE user_id = $1 AND status = 'ACTIVE' AND expires_at > $2
		ORDER BY platform`

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, now); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]*domain.Session, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
