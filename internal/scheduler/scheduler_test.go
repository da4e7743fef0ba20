package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/autoapply-be/internal/autoapply"
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/storage/memory"
)

type fakeSessions struct {
	swept     int
	retention time.Duration
}

func (f *fakeSessions) SweepExpired(ctx context.Context) (int64, error) {
	f.swept++
	return 2, nil
}

func (f *fakeSessions) PurgeInactive(ctx context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 1, nil
}

type fakeJobs struct {
	retentionDays int
	staleAfter    time.Duration
	err           error
}

func (f *fakeJobs) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	f.retentionDays = retentionDays
	return 0, f.err
}

func (f *fakeJobs) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	f.staleAfter = olderThan
	return 0, f.err
}

type fakeProxies struct{ refreshed int }

func (f *fakeProxies) Refresh(ctx context.Context) { f.refreshed++ }

type fakeRunner struct {
	mu        sync.Mutex
	triggered []string
	results   map[string]error
}

func (f *fakeRunner) Trigger(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, userID)
	return f.results[userID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunTask_Maintenance(t *testing.T) {
	sessions := &fakeSessions{}
	jobs := &fakeJobs{}
	proxies := &fakeProxies{}

	s := New(Dependencies{Sessions: sessions, Jobs: jobs, Proxies: proxies}, Config{
		SessionRetention: 48 * time.Hour,
		JobRetentionDays: 14,
		StaleAfter:       3 * time.Minute,
	}, testLogger())

	ctx := context.Background()
	require.NoError(t, s.RunTask(ctx, TaskSessionSweep))
	require.NoError(t, s.RunTask(ctx, TaskSessionPurge))
	require.NoError(t, s.RunTask(ctx, TaskJobCleanup))
	require.NoError(t, s.RunTask(ctx, TaskStaleRecovery))
	require.NoError(t, s.RunTask(ctx, TaskProxyRefresh))

	assert.Equal(t, 1, sessions.swept)
	assert.Equal(t, 48*time.Hour, sessions.retention)
	assert.Equal(t, 14, jobs.retentionDays)
	assert.Equal(t, 3*time.Minute, jobs.staleAfter)
	assert.Equal(t, 1, proxies.refreshed)
}

func TestRunTask_Defaults(t *testing.T) {
	sessions := &fakeSessions{}
	jobs := &fakeJobs{}
	s := New(Dependencies{Sessions: sessions, Jobs: jobs}, Config{}, testLogger())

	require.NoError(t, s.RunTask(context.Background(), TaskSessionPurge))
	require.NoError(t, s.RunTask(context.Background(), TaskJobCleanup))

	assert.Equal(t, 30*24*time.Hour, sessions.retention)
	assert.Equal(t, 7, jobs.retentionDays)
}

func TestRunTask_Errors(t *testing.T) {
	s := New(Dependencies{Jobs: &fakeJobs{err: errors.New("db down")}}, Config{}, testLogger())

	err := s.RunTask(context.Background(), TaskJobCleanup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	err = s.RunTask(context.Background(), "reindex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scheduler task")
}

func TestRunTask_CounterResets(t *testing.T) {
	configs := memory.NewConfigStore(
		&domain.AutoApplyConfig{UserID: "u1", ApplicationsToday: 3, ApplicationsThisMonth: 12},
		&domain.AutoApplyConfig{UserID: "u2", ApplicationsToday: 0, ApplicationsThisMonth: 4},
	)
	s := New(Dependencies{Configs: configs}, Config{}, testLogger())
	ctx := context.Background()

	require.NoError(t, s.RunTask(ctx, TaskDailyReset))

	u1, err := configs.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, u1.ApplicationsToday)
	assert.Equal(t, 12, u1.ApplicationsThisMonth)

	require.NoError(t, s.RunTask(ctx, TaskMonthlyReset))

	u2, err := configs.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, u2.ApplicationsThisMonth)
}

func TestRunTask_AutoApply(t *testing.T) {
	configs := memory.NewConfigStore(
		&domain.AutoApplyConfig{UserID: "u1", IsEnabled: true},
		&domain.AutoApplyConfig{UserID: "u2", IsEnabled: true},
		&domain.AutoApplyConfig{UserID: "u3", IsEnabled: false},
		&domain.AutoApplyConfig{UserID: "u4", IsEnabled: true},
	)

	tests := []struct {
		name      string
		results   map[string]error
		wantErr   string
		triggered []string
	}{
		{
			name:      "every enabled user is triggered",
			triggered: []string{"u1", "u2", "u4"},
		},
		{
			name:      "run in progress is not an error",
			results:   map[string]error{"u2": autoapply.ErrRunInProgress},
			triggered: []string{"u1", "u2", "u4"},
		},
		{
			name:      "other failures are reported after the loop",
			results:   map[string]error{"u1": errors.New("config store unavailable")},
			wantErr:   "user u1",
			triggered: []string{"u1", "u2", "u4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{results: tt.results}
			s := New(Dependencies{Configs: configs, Runner: runner}, Config{}, testLogger())

			err := s.RunTask(context.Background(), TaskAutoApply)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.triggered, runner.triggered)
		})
	}
}

func TestStart(t *testing.T) {
	t.Run("registers configured tasks with dependencies", func(t *testing.T) {
		s := New(Dependencies{Sessions: &fakeSessions{}}, Config{Specs: map[string]string{
			TaskSessionSweep: "*/15 * * * *",
			TaskJobCleanup:   "0 4 * * *",
		}}, testLogger())

		require.NoError(t, s.Start(context.Background()))
		defer s.Stop()

		assert.Len(t, s.cron.Entries(), 1)
	})

	t.Run("rejects unknown task", func(t *testing.T) {
		s := New(Dependencies{}, Config{Specs: map[string]string{"reindex": "@daily"}}, testLogger())

		err := s.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown scheduler task")
	})

	t.Run("rejects invalid spec", func(t *testing.T) {
		s := New(Dependencies{Sessions: &fakeSessions{}}, Config{Specs: map[string]string{
			TaskSessionSweep: "every quarter hour",
		}}, testLogger())

		err := s.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to schedule session_sweep")
	})
}
