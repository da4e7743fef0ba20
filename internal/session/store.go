// Package session owns the lifecycle of per-user, per-platform authenticated scraper sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/proxy"
	"github.com/google/uuid"
)

// Repository persists sessions. Upsert must update the ACTIVE row for
// (user_id, platform) in place when one exists, so a pair never has two ACTIVE rows.
type Repository interface {
	FindActive(ctx context.Context, userID string, platform domain.Platform) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Upsert(ctx context.Context, s *domain.Session) (*domain.Session, error)
	UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, message string, now time.Time) error
	IncrementRequests(ctx context.Context, id string, now time.Time) error
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	DeleteInactiveBefore(ctx context.Context, before time.Time) (int64, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type ProxySource interface {
	Acquire(country string) *proxy.Proxy
}

// Authenticator runs the interactive login of a platform
type Authenticator interface {
	Login(ctx context.Context, platform domain.Platform, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error)
}

// Config holds session lifetime and proxy eligibility settings
type Config struct {
	Expiry        map[domain.Platform]time.Duration
	DefaultExpiry time.Duration
	ProxyCountry  string
	LowestTier    domain.SubscriptionTier
}

func (c Config) expiryFor(p domain.Platform) time.Duration {
	if d, ok := c.Expiry[p]; ok && d > 0 {
		return d
	}
	if c.DefaultExpiry > 0 {
		return c.DefaultExpiry
	}
	return 24 * time.Hour
}

// Store is the session lifecycle service
type Store struct {
	repo    Repository
	users   UserLookup
	proxies ProxySource
	auth    Authenticator
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewStore(repo Repository, users UserLookup, proxies ProxySource, auth Authenticator, cfg Config, logger *slog.Logger) *Store {
	if cfg.LowestTier == "" {
		cfg.LowestTier = domain.TierFree
	}
	return &Store{
		repo:    repo,
		users:   users,
		proxies: proxies,
		auth:    auth,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Login authenticates against the platform and stores the resulting session.
// A failed login leaves no session behind.
func (s *Store) Login(ctx context.Context, userID string, platform domain.Platform, creds domain.LoginCredentials) (*domain.Session, error) {
	if s.auth == nil {
		return nil, domain.LoginFailed(platform, "interactive login is not configured", nil)
	}

	bundle, err := s.auth.Login(ctx, platform, creds, userID)
	if err != nil {
		s.logger.Warn("Platform login failed",
			slog.String("user_id", userID),
			slog.String("platform", platform.String()),
			slog.String("error", err.Error()),
		)
		if domain.IsKind(err, domain.KindLoginFailed) {
			return nil, err
		}
		return nil, domain.LoginFailed(platform, "login could not be completed", err)
	}

	return s.CreateOrRefresh(ctx, userID, platform, *bundle, false)
}

// CreateOrRefresh stores credentials for the pair, refreshing the ACTIVE session in place when there is one
func (s *Store) CreateOrRefresh(ctx context.Context, userID string, platform domain.Platform, bundle domain.CredentialBundle, isClientSide bool) (*domain.Session, error) {
	if bundle.Cookies == "" {
		return nil, fmt.Errorf("credential bundle for %s has no cookies", platform)
	}

	now := s.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  platform,
		Status:    domain.SessionStatusActive,
		Cookies:   bundle.Cookies,
		Headers:   bundle.Headers,
		UserAgent: bundle.UserAgent,
		ExpiresAt: now.Add(s.cfg.expiryFor(platform)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sess.UserAgent == "" {
		sess.UserAgent = RandomUserAgent()
	}
	if !isClientSide && s.proxyEligible(ctx, userID) {
		if px := s.proxies.Acquire(s.cfg.ProxyCountry); px != nil {
			sess.ProxyURL = px.URL()
		}
	}

	stored, err := s.repo.Upsert(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Info("Session stored",
		slog.String("session_id", stored.ID),
		slog.String("user_id", userID),
		slog.String("platform", platform.String()),
		slog.Bool("refreshed", stored.ID != sess.ID),
		slog.Bool("client_side", isClientSide),
		slog.Bool("proxied", stored.ProxyURL != ""),
		slog.Time("expires_at", stored.ExpiresAt),
	)
	return stored, nil
}

func (s *Store) proxyEligible(ctx context.Context, userID string) bool {
	if s.proxies == nil || s.users == nil {
		return false
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("Could not resolve user tier, session will not use a proxy",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return user.SubscriptionTier != "" && user.SubscriptionTier != s.cfg.LowestTier
}

// GetActive returns the usable session of the pair or domain.ErrSessionNotFound
func (s *Store) GetActive(ctx context.Context, userID string, platform domain.Platform) (*domain.Session, error) {
	sess, err := s.repo.FindActive(ctx, userID, platform)
	if err != nil {
		return nil, err
	}
	// expired but not yet swept
	if !sess.IsUsable(s.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Get returns a session by id regardless of status
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.repo.Get(ctx, id)
}

// ListActive returns the user's usable sessions ordered by platform
func (s *Store) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListActiveByUser(ctx, userID, s.now())
}

// Invalidate marks a session INVALID after the platform rejected it
func (s *Store) Invalidate(ctx context.Context, id, reason string) error {
	if err := s.repo.UpdateStatus(ctx, id, domain.SessionStatusInvalid, reason, s.now()); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	s.logger.Warn("Session invalidated",
		slog.String("session_id", id),
		slog.String("reason", reason),
	)
	return nil
}

// MarkRateLimited marks a session RATE_LIMITED after an HTTP 429
func (s *Store) MarkRateLimited(ctx context.Context, id string) error {
	if err := s.repo.UpdateStatus(ctx, id, domain.SessionStatusRateLimited, "rate limited by platform", s.now()); err != nil {
		return fmt.Errorf("failed to mark session rate limited: %w", err)
	}
	s.logger.Warn("Session rate limited", slog.String("session_id", id))
	return nil
}

// RecordRequest counts one successful platform call
func (s *Store) RecordRequest(ctx context.Context, id string) error {
	return s.repo.IncrementRequests(ctx, id, s.now())
}

// SweepExpired moves every ACTIVE session past its expiry to EXPIRED
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("Expired sessions swept", slog.Int64("count", n))
	}
	return n, nil
}

// PurgeInactive deletes non-ACTIVE sessions untouched for longer than retention
func (s *Store) PurgeInactive(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteInactiveBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("Inactive sessions purged", slog.Int64("count", n))
	}
	return n, nil
}

// IsNotFound reports whether err means the pair has no usable session
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound)
}
