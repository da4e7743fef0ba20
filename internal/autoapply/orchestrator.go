// Package autoapply runs unattended search, scoring and application for a user
// across every platform they hold an active session on.
package autoapply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
	"github.com/cuongbtq/autoapply-be/shared/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRunInProgress = errors.New("auto-apply run already in progress for user")
	ErrShuttingDown  = errors.New("auto-apply is shutting down")
)

const applicationSource = "AUTO_APPLY"

type ConfigRepository interface {
	Get(ctx context.Context, userID string) (*domain.AutoApplyConfig, error)
	// ReserveApplication atomically takes one daily and monthly slot, false when a cap is met
	ReserveApplication(ctx context.Context, userID string) (bool, error)
	ReleaseApplication(ctx context.Context, userID string) error
}

type Documents interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	GetDefault(ctx context.Context, userID string, docType domain.DocumentType) (*domain.Document, error)
	IncrementUsage(ctx context.Context, id string) error
}

// JobBoard is the product's own job and application records
type JobBoard interface {
	CreateJob(ctx context.Context, posting *domain.JobPosting) (string, error)
	Apply(ctx context.Context, app *domain.Application) error
}

type Sessions interface {
	ListActive(ctx context.Context, userID string) ([]*domain.Session, error)
}

type Adapters interface {
	Get(p domain.Platform) (platform.Adapter, error)
}

// Jobs is the scraper job queue every adapter call goes through
type Jobs interface {
	Enqueue(ctx context.Context, userID string, p domain.Platform, action domain.Action, isAutoApply bool) (*domain.ScraperJob, error)
	MarkProcessing(ctx context.Context, id string) (*domain.ScraperJob, error)
	MarkCompleted(ctx context.Context, id string, result any) error
	MarkFailed(ctx context.Context, id, message string) (*domain.ScraperJob, error)
	MarkFailedPermanent(ctx context.Context, id, message string) (*domain.ScraperJob, error)
}

type Config struct {
	Weights       Weights
	SearchWindow  domain.DateWindow
	SearchLimit   int
	ActionTimeout time.Duration
}

type Dependencies struct {
	Configs   ConfigRepository
	Sessions  Sessions
	Adapters  Adapters
	Jobs      Jobs
	Documents Documents
	JobBoard  JobBoard
	Recorder  *Recorder
	Canceller *Canceller
}

// Summary counts the history entries a run produced
type Summary struct {
	UserID  string `json:"user_id"`
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	// base is the parent of every triggered run; Shutdown cancels it
	base     context.Context
	stopRuns context.CancelFunc

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func New(deps Dependencies, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.SearchWindow == "" {
		cfg.SearchWindow = domain.DateWindowPastWeek
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 60 * time.Second
	}
	base, stopRuns := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		tracer:   telemetry.Tracer("autoapply"),
		base:     base,
		stopRuns: stopRuns,
		running:  make(map[string]struct{}),
	}
}

// Trigger starts a run in the background. The run outlives the caller's request
// and is stopped by Shutdown before its next listing.
func (o *Orchestrator) Trigger(ctx context.Context, userID string) error {
	o.mu.Lock()
	if o.base.Err() != nil {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := o.running[userID]; ok {
		o.mu.Unlock()
		return ErrRunInProgress
	}
	o.running[userID] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	// only now is any cancel flag known to be left over from an earlier run
	if o.deps.Canceller != nil {
		if err := o.deps.Canceller.Clear(ctx, userID); err != nil {
			o.logger.Warn("Failed to clear cancel flag",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	go func() {
		defer o.wg.Done()
		defer o.release(userID)
		if _, err := o.run(o.base, userID); err != nil {
			o.logger.Error("Auto-apply run failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Shutdown cancels triggered runs and waits for them to wind down until ctx is done
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopRuns()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("auto-apply runs still in progress: %w", ctx.Err())
	}
}

// Wait blocks until every triggered run has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Run executes one auto-apply pass for the user and blocks until it is done
func (o *Orchestrator) Run(ctx context.Context, userID string) (*Summary, error) {
	if !o.acquire(userID) {
		return nil, ErrRunInProgress
	}
	defer o.release(userID)
	return o.run(ctx, userID)
}

func (o *Orchestrator) acquire(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[userID]; ok {
		return false
	}
	o.running[userID] = struct{}{}
	return true
}

func (o *Orchestrator) release(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, userID)
}

// userRun is the state of one run. Platforms share it concurrently.
type userRun struct {
	o      *Orchestrator
	userID string
	logger *slog.Logger

	resume      *domain.Document
	coverLetter *domain.Document

	limitOnce sync.Once
	applied   atomic.Int32
	skipped   atomic.Int32
	failed    atomic.Int32
}

func (r *userRun) summary() *Summary {
	return &Summary{
		UserID:  r.userID,
		Applied: int(r.applied.Load()),
		Skipped: int(r.skipped.Load()),
		Failed:  int(r.failed.Load()),
	}
}

func (o *Orchestrator) run(ctx context.Context, userID string) (summary *Summary, err error) {
	ctx, span := o.tracer.Start(ctx, "autoapply.run", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	r := &userRun{
		o:      o,
		userID: userID,
		logger: o.logger.With(slog.String("user_id", userID)),
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.record(ctx, failure(userID, "", fmt.Sprintf("Auto-apply run failed unexpectedly: %v", rec)))
			err = fmt.Errorf("auto-apply run panicked: %v", rec)
		}
		summary = r.summary()
		if o.deps.Canceller != nil {
			if cerr := o.deps.Canceller.Clear(context.WithoutCancel(ctx), userID); cerr != nil {
				r.logger.Warn("Failed to clear cancel flag", slog.String("error", cerr.Error()))
			}
		}
		r.logger.Info("Auto-apply run finished",
			slog.Int("applied", summary.Applied),
			slog.Int("skipped", summary.Skipped),
			slog.Int("failed", summary.Failed),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	cfg, err := o.deps.Configs.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrConfigNotFound) {
			r.logger.Info("Auto-apply not configured for user")
			return nil, err
		}
		r.record(ctx, failure(userID, "", fmt.Sprintf("Could not load auto-apply settings: %v", err)))
		return nil, fmt.Errorf("failed to load auto-apply config: %w", err)
	}

	if !cfg.IsEnabled {
		r.logger.Info("Auto-apply disabled, skipping run")
		return nil, nil
	}

	if cfg.QuotaReached() {
		r.limitReached(ctx, "", cfg)
		return nil, nil
	}

	sessions, err := o.deps.Sessions.ListActive(ctx, userID)
	if err != nil {
		r.record(ctx, failure(userID, "", fmt.Sprintf("Could not load platform sessions: %v", err)))
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		r.record(ctx, failure(userID, "", "No active platform session. Log in to at least one job platform to use auto-apply."))
		return nil, nil
	}

	r.resolveDocuments(ctx, cfg)

	r.logger.Info("Auto-apply run started", slog.Int("platforms", len(sessions)))

	var g errgroup.Group
	for _, sess := range sessions {
		g.Go(func() error {
			r.platformBoundary(ctx, cfg, sess)
			return nil
		})
	}
	_ = g.Wait()

	return nil, nil
}

// platformBoundary turns anything that escapes a platform into one history entry
func (r *userRun) platformBoundary(ctx context.Context, cfg *domain.AutoApplyConfig, sess *domain.Session) {
	ctx, span := r.o.tracer.Start(ctx, "autoapply.platform", trace.WithAttributes(attribute.String("platform", sess.Platform.String())))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Platform processing panicked",
				slog.String("platform", sess.Platform.String()),
				slog.Any("panic", rec),
			)
			r.record(ctx, failure(r.userID, sess.Platform, fmt.Sprintf("Processing %s failed unexpectedly: %v", sess.Platform, rec)))
		}
	}()

	if err := r.processPlatform(ctx, cfg, sess); err != nil {
		span.RecordError(err)
		r.record(ctx, failure(r.userID, sess.Platform, fmt.Sprintf("Processing %s failed: %v", sess.Platform, err)))
	}
}

func (r *userRun) processPlatform(ctx context.Context, cfg *domain.AutoApplyConfig, sess *domain.Session) error {
	adapter, err := r.o.deps.Adapters.Get(sess.Platform)
	if err != nil {
		return err
	}
	logger := r.logger.With(slog.String("platform", sess.Platform.String()))

	search := adapter.BuildSearch(cfg.SearchCriteria(r.o.cfg.SearchWindow, r.o.cfg.SearchLimit))
	out, err := r.o.execute(ctx, adapter, sess, search, false)
	if err != nil {
		r.record(ctx, failure(r.userID, sess.Platform, fmt.Sprintf("Search on %s failed: %v", sess.Platform, err)))
		return nil
	}
	result, ok := out.(platform.SearchResult)
	if !ok {
		return fmt.Errorf("unexpected search result %T", out)
	}
	logger.Info("Search completed", slog.Int("listings", len(result.Listings)))

	for i := range result.Listings {
		stop, err := r.shouldStop(ctx, sess.Platform)
		if err != nil {
			return err
		}
		if stop {
			break
		}
		stop, err = r.processListing(ctx, cfg, adapter, sess, &result.Listings[i])
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// shouldStop is checked before every listing: cancellation, disabling and the live quota
func (r *userRun) shouldStop(ctx context.Context, p domain.Platform) (bool, error) {
	if ctx.Err() != nil {
		r.logger.Info("Auto-apply run cancelled", slog.String("platform", p.String()))
		return true, nil
	}

	if r.o.deps.Canceller != nil {
		cancelled, err := r.o.deps.Canceller.Cancelled(ctx, r.userID)
		if err != nil {
			r.logger.Warn("Failed to read cancel flag", slog.String("error", err.Error()))
		}
		if cancelled {
			r.logger.Info("Auto-apply run cancelled by user", slog.String("platform", p.String()))
			return true, nil
		}
	}

	live, err := r.o.deps.Configs.Get(ctx, r.userID)
	if err != nil {
		return true, fmt.Errorf("quota re-check failed: %w", err)
	}
	if !live.IsEnabled {
		r.logger.Info("Auto-apply disabled mid-run", slog.String("platform", p.String()))
		return true, nil
	}
	if live.QuotaReached() {
		r.limitReached(ctx, p, live)
		return true, nil
	}
	return false, nil
}

// processListing reports stop when the quota ran out before this listing could be applied to
func (r *userRun) processListing(ctx context.Context, cfg *domain.AutoApplyConfig, adapter platform.Adapter, sess *domain.Session, summary *domain.Listing) (bool, error) {
	logger := r.logger.With(
		slog.String("platform", sess.Platform.String()),
		slog.String("listing_id", summary.ID),
	)

	out, err := r.o.execute(ctx, adapter, sess, domain.DetailAction{ListingID: summary.ID}, false)
	if err != nil {
		logger.Warn("Failed to fetch listing details, skipping", slog.String("error", err.Error()))
		return false, nil
	}
	listing, ok := out.(*domain.Listing)
	if !ok || listing == nil {
		logger.Warn("Adapter returned no listing details, skipping")
		return false, nil
	}

	entry := func(status domain.HistoryStatus, reason domain.HistoryReason, score *int, msg string) *domain.HistoryEntry {
		return &domain.HistoryEntry{
			UserID:     r.userID,
			Platform:   sess.Platform,
			ListingID:  listing.ID,
			Status:     status,
			Reason:     reason,
			Message:    msg,
			MatchScore: score,
		}
	}

	score := r.o.cfg.Weights.Score(cfg, listing, adapter.CanonicalJobType(listing.EmploymentType))
	logger.Debug("Listing scored", slog.Int("score", score))

	if score < cfg.MatchThreshold {
		r.record(ctx, entry(domain.HistorySkipped, domain.ReasonLowMatch, &score,
			fmt.Sprintf("Match score %d is below your threshold of %d", score, cfg.MatchThreshold)))
		return false, nil
	}

	if kw, found := containsAny(listing.Title+" "+listing.Description, cfg.ExcludedKeywords); found {
		r.record(ctx, entry(domain.HistorySkipped, domain.ReasonExcludedKeyword, &score,
			fmt.Sprintf("Listing mentions excluded keyword %q", kw)))
		return false, nil
	}

	if company, found := containsAny(listing.CompanyName, cfg.ExcludedCompanies); found {
		r.record(ctx, entry(domain.HistorySkipped, domain.ReasonExcludedCompany, &score,
			fmt.Sprintf("Company %q matches excluded company %q", listing.CompanyName, company)))
		return false, nil
	}

	if adapter.RequiresDirectApply() && !listing.HasDirectApply {
		r.record(ctx, entry(domain.HistorySkipped, domain.ReasonError, &score,
			fmt.Sprintf("Listing cannot be applied to directly on %s", sess.Platform)))
		return false, nil
	}

	reserved, err := r.o.deps.Configs.ReserveApplication(ctx, r.userID)
	if err != nil {
		return true, fmt.Errorf("quota reservation failed: %w", err)
	}
	if !reserved {
		live, err := r.o.deps.Configs.Get(ctx, r.userID)
		if err != nil {
			live = cfg
		}
		r.limitReached(ctx, sess.Platform, live)
		return true, nil
	}

	// bookkeeping must not be lost to a run being cancelled after the slot was taken
	bg := context.WithoutCancel(ctx)

	apply := domain.ApplyAction{ListingID: listing.ID}
	if r.coverLetter != nil {
		apply.CoverLetter = r.coverLetter.Content
	}
	if r.resume != nil {
		apply.ResumeURL = r.resume.URL
	}

	out, err = r.o.execute(ctx, adapter, sess, apply, true)
	if err != nil {
		if rerr := r.o.deps.Configs.ReleaseApplication(bg, r.userID); rerr != nil {
			logger.Error("Failed to release quota slot", slog.String("error", rerr.Error()))
		}
		if domain.IsKind(err, domain.KindApplyNotSupported) {
			r.record(ctx, entry(domain.HistorySkipped, domain.ReasonError, &score,
				fmt.Sprintf("Listing cannot be applied to directly on %s", sess.Platform)))
			return false, nil
		}
		r.record(ctx, entry(domain.HistoryFailed, domain.ReasonError, &score, fmt.Sprintf("Apply failed: %v", err)))
		return false, nil
	}

	applied := entry(domain.HistorySuccess, domain.ReasonApplied, &score,
		fmt.Sprintf("Applied to %s at %s", listing.Title, listing.CompanyName))
	if res, ok := out.(*domain.ApplyResult); ok && res != nil && res.Message != "" {
		logger.Debug("Platform confirmed application", slog.String("message", res.Message))
	}

	r.incrementUsage(bg, logger)
	applied.JobID = r.mirror(bg, logger, listing, apply)

	r.record(ctx, applied)
	return false, nil
}

func (r *userRun) incrementUsage(ctx context.Context, logger *slog.Logger) {
	for _, doc := range []*domain.Document{r.resume, r.coverLetter} {
		if doc == nil {
			continue
		}
		if err := r.o.deps.Documents.IncrementUsage(ctx, doc.ID); err != nil {
			logger.Warn("Failed to increment document usage",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// mirror copies the application into the product's own records and returns the job id
func (r *userRun) mirror(ctx context.Context, logger *slog.Logger, l *domain.Listing, apply domain.ApplyAction) string {
	if r.o.deps.JobBoard == nil {
		return ""
	}
	jobID, err := r.o.deps.JobBoard.CreateJob(ctx, &domain.JobPosting{
		Platform:    l.Platform,
		ExternalID:  l.ID,
		Title:       l.Title,
		CompanyName: l.CompanyName,
		Location:    l.Location,
		Description: l.Description,
		URL:         l.URL,
	})
	if err != nil {
		logger.Error("Failed to mirror job posting", slog.String("error", err.Error()))
		return ""
	}
	err = r.o.deps.JobBoard.Apply(ctx, &domain.Application{
		UserID:      r.userID,
		JobID:       jobID,
		CoverLetter: apply.CoverLetter,
		ResumeURL:   apply.ResumeURL,
		Source:      applicationSource,
	})
	if err != nil {
		logger.Error("Failed to mirror application", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
	return jobID
}

func (r *userRun) resolveDocuments(ctx context.Context, cfg *domain.AutoApplyConfig) {
	r.resume = r.document(ctx, cfg.DefaultResumeID, domain.DocumentResume)
	r.coverLetter = r.document(ctx, cfg.DefaultCoverLetterID, domain.DocumentCoverLetter)
}

func (r *userRun) document(ctx context.Context, configuredID string, docType domain.DocumentType) *domain.Document {
	if r.o.deps.Documents == nil {
		return nil
	}
	if configuredID != "" {
		doc, err := r.o.deps.Documents.Get(ctx, configuredID)
		if err == nil {
			return doc
		}
		r.logger.Warn("Configured document unavailable, using default",
			slog.String("document_id", configuredID),
			slog.String("error", err.Error()),
		)
	}
	doc, err := r.o.deps.Documents.GetDefault(ctx, r.userID, docType)
	if err != nil {
		r.logger.Warn("Failed to load default document", slog.String("type", string(docType)), slog.String("error", err.Error()))
		return nil
	}
	return doc
}

// limitReached records the single LIMIT_REACHED entry of the run
func (r *userRun) limitReached(ctx context.Context, p domain.Platform, cfg *domain.AutoApplyConfig) {
	r.limitOnce.Do(func() {
		r.record(ctx, &domain.HistoryEntry{
			UserID:   r.userID,
			Platform: p,
			Status:   domain.HistorySkipped,
			Reason:   domain.ReasonLimitReached,
			Message: fmt.Sprintf("Application limit reached (%d/%d today, %d/%d this month)",
				cfg.ApplicationsToday, cfg.DailyLimit, cfg.ApplicationsThisMonth, cfg.MonthlyLimit),
		})
	})
}

func (r *userRun) record(ctx context.Context, e *domain.HistoryEntry) {
	switch e.Status {
	case domain.HistorySuccess:
		r.applied.Add(1)
	case domain.HistorySkipped:
		r.skipped.Add(1)
	case domain.HistoryFailed:
		r.failed.Add(1)
	}
	if err := r.o.deps.Recorder.Record(ctx, e); err != nil {
		r.logger.Error("Failed to record history entry",
			slog.String("status", string(e.Status)),
			slog.String("reason", string(e.Reason)),
			slog.String("error", err.Error()),
		)
	}
}

func failure(userID string, p domain.Platform, msg string) *domain.HistoryEntry {
	return &domain.HistoryEntry{
		UserID:   userID,
		Platform: p,
		Status:   domain.HistoryFailed,
		Reason:   domain.ReasonError,
		Message:  msg,
	}
}

// execute runs one adapter call as a scraper job so every call is durable and auditable.
// permanent marks failures terminal regardless of the error kind.
func (o *Orchestrator) execute(ctx context.Context, adapter platform.Adapter, sess *domain.Session, action domain.Action, permanent bool) (any, error) {
	job, err := o.deps.Jobs.Enqueue(ctx, sess.UserID, sess.Platform, action, true)
	if err != nil {
		return nil, err
	}
	if _, err := o.deps.Jobs.MarkProcessing(ctx, job.ID); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	result, execErr := platform.Execute(callCtx, adapter, sess, action)
	cancel()

	bg := context.WithoutCancel(ctx)
	if execErr != nil {
		fail := o.deps.Jobs.MarkFailed
		if permanent || !domain.IsRetryable(execErr) {
			fail = o.deps.Jobs.MarkFailedPermanent
		}
		if _, err := fail(bg, job.ID, execErr.Error()); err != nil {
			o.logger.Error("Failed to mark job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		}
		return nil, execErr
	}

	if err := o.deps.Jobs.MarkCompleted(bg, job.ID, result); err != nil {
		o.logger.Error("Failed to mark job completed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
	return result, nil
}
