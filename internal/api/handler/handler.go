package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// SessionService is the session lifecycle the API drives
type SessionService interface {
	Login(ctx context.Context, userID string, platform domain.Platform, creds domain.LoginCredentials) (*domain.Session, error)
	CreateOrRefresh(ctx context.Context, userID string, platform domain.Platform, bundle domain.CredentialBundle, isClientSide bool) (*domain.Session, error)
	GetActive(ctx context.Context, userID string, platform domain.Platform) (*domain.Session, error)
	Invalidate(ctx context.Context, id, reason string) error
}

// JobService is the scraper job queue
type JobService interface {
	Enqueue(ctx context.Context, userID string, p domain.Platform, action domain.Action, isAutoApply bool) (*domain.ScraperJob, error)
	Get(ctx context.Context, id string) (*domain.ScraperJob, error)
	Retry(ctx context.Context, id string) (*domain.ScraperJob, error)
}

// AutoApplyRunner starts background runs
type AutoApplyRunner interface {
	Trigger(ctx context.Context, userID string) error
}

// RunCanceller sets and clears the per-user cancel flag
type RunCanceller interface {
	Cancel(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
}

type HistoryLister interface {
	ListByUser(ctx context.Context, userID string, after *domain.PageCursor, limit int) ([]*domain.HistoryEntry, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Sessions  SessionService
	Jobs      JobService
	AutoApply AutoApplyRunner
	Canceller RunCanceller
	History   HistoryLister
}

// SessionHandler handles scraper session requests
type SessionHandler struct {
	logger   *slog.Logger
	sessions SessionService
}

func NewSessionHandler(deps *Dependencies) *SessionHandler {
	return &SessionHandler{logger: deps.Logger, sessions: deps.Sessions}
}

// JobHandler handles scraper job requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{logger: deps.Logger, jobs: deps.Jobs}
}

// AutoApplyHandler handles run triggers, cancellation and history
type AutoApplyHandler struct {
	logger    *slog.Logger
	runner    AutoApplyRunner
	canceller RunCanceller
	history   HistoryLister
}

func NewAutoApplyHandler(deps *Dependencies) *AutoApplyHandler {
	return &AutoApplyHandler{
		logger:    deps.Logger,
		runner:    deps.AutoApply,
		canceller: deps.Canceller,
		history:   deps.History,
	}
}
