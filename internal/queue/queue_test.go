package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingNotifier struct{ ids []string }

func (n *recordingNotifier) NotifyJob(ctx context.Context, jobID string) error {
	n.ids = append(n.ids, jobID)
	return nil
}

func newTestQueue(t *testing.T) (*Queue, *fakeClock, *recordingNotifier) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	q := New(memory.NewJobStore(), notifier, Config{MaxRetries: 3, BaseDelay: time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.now = clock.Now
	return q, clock, notifier
}

func searchAction() domain.Action {
	return domain.SearchAction{Keywords: "golang"}
}

func TestEnqueue(t *testing.T) {
	q, _, notifier := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Nil(t, job.NextRetryAt)
	assert.Equal(t, []string{job.ID}, notifier.ids)

	action, err := job.Action()
	require.NoError(t, err)
	assert.Equal(t, searchAction(), action)

	_, err = q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, domain.ApplyAction{}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestEnqueue_AutoApplySkipsNotification(t *testing.T) {
	q, _, notifier := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "user-1", domain.PlatformIndeed, searchAction(), true)
	require.NoError(t, err)
	assert.Empty(t, notifier.ids)
}

func TestBackoff(t *testing.T) {
	q, _, _ := newTestQueue(t)

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{retry: 0, want: time.Minute},
		{retry: 1, want: time.Minute},
		{retry: 2, want: 2 * time.Minute},
		{retry: 3, want: 4 * time.Minute},
		{retry: 5, want: 16 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, q.Backoff(tt.retry), "retry %d", tt.retry)
	}

	q.cfg.MaxDelay = 3 * time.Minute
	assert.Equal(t, 3*time.Minute, q.Backoff(3))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "uncapped", cfg: Config{MaxRetries: 5, BaseDelay: time.Minute}},
		{name: "cap above last backoff", cfg: Config{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: 30 * time.Minute}},
		{name: "cap equal to last backoff", cfg: Config{MaxRetries: 4, BaseDelay: time.Minute, MaxDelay: 4 * time.Minute}},
		{name: "cap below last backoff", cfg: Config{MaxRetries: 4, BaseDelay: time.Minute, MaxDelay: 3 * time.Minute}, wantErr: true},
		{name: "defaults against a small cap", cfg: Config{MaxDelay: 10 * time.Second}, wantErr: true},
		{name: "many retries", cfg: Config{MaxRetries: 1000, BaseDelay: time.Second, MaxDelay: time.Hour}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBackoff_StrictlyIncreasesUnderValidCap(t *testing.T) {
	cfg := Config{MaxRetries: 5, BaseDelay: time.Minute, MaxDelay: 8 * time.Minute}
	require.NoError(t, cfg.Validate())
	q := New(memory.NewJobStore(), nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for n := 2; n < cfg.MaxRetries; n++ {
		assert.Greater(t, q.Backoff(n), q.Backoff(n-1), "retry %d", n)
	}
}

func TestMarkFailed_ReachesCeilingAndLeavesSelection(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)

	var lastDelay time.Duration
	for i := 1; i <= 3; i++ {
		failed, err := q.MarkFailed(ctx, job.ID, "boom")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, failed.Status)
		assert.Equal(t, i, failed.RetryCount)

		if i < 3 {
			require.NotNil(t, failed.NextRetryAt)
			delay := failed.NextRetryAt.Sub(clock.Now())
			assert.Greater(t, delay, lastDelay)
			lastDelay = delay
		} else {
			assert.Nil(t, failed.NextRetryAt)
		}
	}

	// one more failure clamps at the ceiling
	failed, err := q.MarkFailed(ctx, job.ID, "boom again")
	require.NoError(t, err)
	assert.Equal(t, 3, failed.RetryCount)

	clock.Advance(24 * time.Hour)
	claimable, err := q.ClaimNext(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimable)

	_, err = q.MarkProcessing(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
}

func TestClaimNext(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := q.Enqueue(ctx, "user-1", domain.PlatformCatho, searchAction(), false)
	require.NoError(t, err)
	clock.Advance(time.Second)
	third, err := q.Enqueue(ctx, "user-2", domain.PlatformInfoJobs, searchAction(), false)
	require.NoError(t, err)

	// first fails and waits for its backoff
	_, err = q.MarkProcessing(ctx, first.ID)
	require.NoError(t, err)
	_, err = q.MarkFailed(ctx, first.ID, "timeout")
	require.NoError(t, err)

	// third completes
	_, err = q.MarkProcessing(ctx, third.ID)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, third.ID, map[string]int{"listings": 3}))

	jobs, err := q.ClaimNext(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, second.ID, jobs[0].ID)

	clock.Advance(time.Minute)
	jobs, err = q.ClaimNext(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first.ID, jobs[0].ID, "oldest eligible first")
	assert.Equal(t, second.ID, jobs[1].ID)

	jobs, err = q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestMarkProcessing_OnlyOnce(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)

	_, err = q.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)

	_, err = q.MarkProcessing(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMarkProcessing_WaitsForBackoff(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, err = q.MarkFailed(ctx, job.ID, "timeout")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = q.MarkProcessing(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)

	clock.Advance(time.Minute)
	claimed, err := q.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
}

func TestMarkFailedPermanent(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)

	failed, err := q.MarkFailedPermanent(ctx, job.ID, "session invalid")
	require.NoError(t, err)
	assert.Equal(t, 3, failed.RetryCount)
	assert.Nil(t, failed.NextRetryAt)
	assert.True(t, failed.IsTerminal(q.MaxRetries()))
}

func TestRetry(t *testing.T) {
	q, _, notifier := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)

	_, err = q.Retry(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFailed)

	_, err = q.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, err = q.MarkFailed(ctx, job.ID, "blip")
	require.NoError(t, err)

	reset, err := q.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, reset.Status)
	assert.Equal(t, 1, reset.RetryCount)
	assert.Nil(t, reset.NextRetryAt)
	assert.Empty(t, reset.ErrorMessage)
	assert.Len(t, notifier.ids, 2)

	jobs, err := q.ClaimNext(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestCleanup(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()

	completed, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, completed.ID)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, completed.ID, nil))

	failed, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkFailedPermanent(ctx, failed.ID, "bad")
	require.NoError(t, err)

	pending, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)
	fresh, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, fresh.ID)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, fresh.ID, nil))

	deleted, err := q.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = q.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	_, err = q.Get(ctx, completed.ID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	for _, id := range []string{failed.ID, pending.ID, fresh.ID} {
		_, err := q.Get(ctx, id)
		assert.NoError(t, err)
	}

	_, err = q.Cleanup(ctx, -1)
	assert.Error(t, err)
}

func TestRecoverStale(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()

	stale, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, stale.ID)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	alive, err := q.Enqueue(ctx, "user-1", domain.PlatformLinkedIn, searchAction(), false)
	require.NoError(t, err)
	_, err = q.MarkProcessing(ctx, alive.ID)
	require.NoError(t, err)

	n, err := q.RecoverStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "worker heartbeat lost", job.ErrorMessage)

	job, err = q.Get(ctx, alive.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
}
