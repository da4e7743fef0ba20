// Package scheduler wires the periodic maintenance tasks and scheduled
// auto-apply runs onto robfig/cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuongbtq/autoapply-be/internal/autoapply"
)

// Task names, also the keys of Config.Specs
const (
	TaskSessionSweep  = "session_sweep"
	TaskSessionPurge  = "session_purge"
	TaskJobCleanup    = "job_cleanup"
	TaskStaleRecovery = "stale_recovery"
	TaskProxyRefresh  = "proxy_refresh"
	TaskDailyReset    = "daily_reset"
	TaskMonthlyReset  = "monthly_reset"
	TaskAutoApply     = "auto_apply"
)

type Sessions interface {
	SweepExpired(ctx context.Context) (int64, error)
	PurgeInactive(ctx context.Context, retention time.Duration) (int64, error)
}

type Jobs interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type Proxies interface {
	Refresh(ctx context.Context)
}

// Configs is the auto-apply config store
type Configs interface {
	ListEnabledUserIDs(ctx context.Context) ([]string, error)
	ResetDaily(ctx context.Context) (int64, error)
	ResetMonthly(ctx context.Context) (int64, error)
}

// Runner starts an asynchronous auto-apply run for one user
type Runner interface {
	Trigger(ctx context.Context, userID string) error
}

type Config struct {
	// Specs maps task name to cron spec. Tasks without a spec are not scheduled.
	Specs            map[string]string
	SessionRetention time.Duration
	JobRetentionDays int
	StaleAfter       time.Duration
	TaskTimeout      time.Duration
}

type Dependencies struct {
	Sessions Sessions
	Jobs     Jobs
	Proxies  Proxies
	Configs  Configs
	Runner   Runner
}

// Scheduler owns a cron instance running the configured tasks
type Scheduler struct {
	cron   *cron.Cron
	deps   Dependencies
	cfg    Config
	logger *slog.Logger
	tasks  map[string]func(ctx context.Context) error
}

func New(deps Dependencies, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Minute
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = 30 * 24 * time.Hour
	}
	if cfg.JobRetentionDays <= 0 {
		cfg.JobRetentionDays = 7
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
	s.tasks = map[string]func(ctx context.Context) error{
		TaskSessionSweep:  s.sweepSessions,
		TaskSessionPurge:  s.purgeSessions,
		TaskJobCleanup:    s.cleanupJobs,
		TaskStaleRecovery: s.recoverStale,
		TaskProxyRefresh:  s.refreshProxies,
		TaskDailyReset:    s.resetDaily,
		TaskMonthlyReset:  s.resetMonthly,
		TaskAutoApply:     s.triggerAutoApply,
	}
	return s
}

// Start registers every configured task and starts the cron loop.
// Tasks run under ctx; cancelling it aborts in-flight tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	names := make([]string, 0, len(s.cfg.Specs))
	for name := range s.cfg.Specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := s.cfg.Specs[name]
		if _, ok := s.tasks[name]; !ok {
			return fmt.Errorf("unknown scheduler task: %s", name)
		}
		if !s.available(name) {
			s.logger.Warn("Scheduler task skipped, dependency not configured", slog.String("task", name))
			continue
		}
		task := name
		if _, err := s.cron.AddFunc(spec, func() { s.RunTask(ctx, task) }); err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", name, spec, err)
		}
		s.logger.Info("Scheduler task registered",
			slog.String("task", name),
			slog.String("spec", spec),
		)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", slog.Int("tasks", len(s.cron.Entries())))
	return nil
}

// Stop halts the cron loop and waits for running tasks to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunTask runs one task synchronously with the task timeout, logging its outcome
func (s *Scheduler) RunTask(ctx context.Context, name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("unknown scheduler task: %s", name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := task(ctx)
	if err != nil {
		s.logger.Error("Scheduler task failed",
			slog.String("task", name),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return err
	}
	s.logger.Debug("Scheduler task finished",
		slog.String("task", name),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Scheduler) available(name string) bool {
	switch name {
	case TaskSessionSweep, TaskSessionPurge:
		return s.deps.Sessions != nil
	case TaskJobCleanup, TaskStaleRecovery:
		return s.deps.Jobs != nil
	case TaskProxyRefresh:
		return s.deps.Proxies != nil
	case TaskDailyReset, TaskMonthlyReset:
		return s.deps.Configs != nil
	case TaskAutoApply:
		return s.deps.Configs != nil && s.deps.Runner != nil
	}
	return false
}

func (s *Scheduler) sweepSessions(ctx context.Context) error {
	_, err := s.deps.Sessions.SweepExpired(ctx)
	return err
}

func (s *Scheduler) purgeSessions(ctx context.Context) error {
	_, err := s.deps.Sessions.PurgeInactive(ctx, s.cfg.SessionRetention)
	return err
}

func (s *Scheduler) cleanupJobs(ctx context.Context) error {
	_, err := s.deps.Jobs.Cleanup(ctx, s.cfg.JobRetentionDays)
	return err
}

func (s *Scheduler) recoverStale(ctx context.Context) error {
	_, err := s.deps.Jobs.RecoverStale(ctx, s.cfg.StaleAfter)
	return err
}

func (s *Scheduler) refreshProxies(ctx context.Context) error {
	s.deps.Proxies.Refresh(ctx)
	return nil
}

func (s *Scheduler) resetDaily(ctx context.Context) error {
	n, err := s.deps.Configs.ResetDaily(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset daily counters: %w", err)
	}
	s.logger.Info("Daily application counters reset", slog.Int64("configs", n))
	return nil
}

func (s *Scheduler) resetMonthly(ctx context.Context) error {
	n, err := s.deps.Configs.ResetMonthly(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset monthly counters: %w", err)
	}
	s.logger.Info("Monthly application counters reset", slog.Int64("configs", n))
	return nil
}

// triggerAutoApply starts a run for every enabled user. Users with a run
// still in flight are skipped.
func (s *Scheduler) triggerAutoApply(ctx context.Context) error {
	userIDs, err := s.deps.Configs.ListEnabledUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled users: %w", err)
	}
	if len(userIDs) == 0 {
		s.logger.Debug("No users with auto-apply enabled")
		return nil
	}

	started := 0
	var errs []error
	for _, userID := range userIDs {
		if err := s.deps.Runner.Trigger(ctx, userID); err != nil {
			if errors.Is(err, autoapply.ErrRunInProgress) {
				s.logger.Debug("Auto-apply run already in progress", slog.String("user_id", userID))
				continue
			}
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		started++
	}

	s.logger.Info("Scheduled auto-apply runs triggered",
		slog.Int("enabled", len(userIDs)),
		slog.Int("started", started),
	)
	return errors.Join(errs...)
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
