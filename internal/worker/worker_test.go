package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
	"github.com/cuongbtq/autoapply-be/internal/queue"
	"github.com/cuongbtq/autoapply-be/internal/storage/memory"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubAdapter struct {
	platform.Adapter
	err error
}

func (a *stubAdapter) Platform() domain.Platform { return domain.PlatformLinkedIn }

func (a *stubAdapter) Search(ctx context.Context, sess *domain.Session, action domain.SearchAction) ([]domain.Listing, error) {
	if a.err != nil {
		return nil, a.err
	}
	return []domain.Listing{{ID: "1", Title: action.Keywords}}, nil
}

type stubSessions struct{ err error }

func (s *stubSessions) GetActive(ctx context.Context, userID string, p domain.Platform) (*domain.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Session{ID: "sess-1", UserID: userID, Platform: p, Status: domain.SessionStatusActive}, nil
}

type recordingBroker struct {
	mu    sync.Mutex
	acks  []uint64
	nacks map[uint64]bool
}

func newRecordingBroker() *recordingBroker {
	return &recordingBroker{nacks: make(map[uint64]bool)}
}

func (b *recordingBroker) Consume(string, int) (<-chan amqp.Delivery, error) {
	return nil, errors.New("not used")
}

func (b *recordingBroker) Ack(tag uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks = append(b.acks, tag)
	return nil
}

func (b *recordingBroker) Nack(tag uint64, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacks[tag] = requeue
	return nil
}

type testEnv struct {
	worker   *Worker
	queue    *queue.Queue
	store    *memory.JobStore
	adapter  *stubAdapter
	sessions *stubSessions
	broker   *recordingBroker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewJobStore()
	env := &testEnv{
		queue:    queue.New(store, nil, queue.Config{MaxRetries: 3, BaseDelay: time.Minute}, discard),
		store:    store,
		adapter:  &stubAdapter{},
		sessions: &stubSessions{},
		broker:   newRecordingBroker(),
	}
	env.worker = NewWorker(&Config{
		Logger:   discard,
		WorkerID: "worker-test",
		Jobs:     env.queue,
		Sessions: env.sessions,
		Adapters: platform.NewRegistry(env.adapter),
		Broker:   env.broker,
	})
	return env
}

func (e *testEnv) enqueue(t *testing.T, autoApply bool) *domain.ScraperJob {
	t.Helper()
	job, err := e.queue.Enqueue(context.Background(), "user-1", domain.PlatformLinkedIn, domain.SearchAction{Keywords: "golang"}, autoApply)
	require.NoError(t, err)
	return job
}

func TestProcessJob_Completes(t *testing.T) {
	env := newTestEnv(t)
	job := env.enqueue(t, false)
	ctx := context.Background()

	msg := &JobMessage{JobID: job.ID, DeliveryTag: 7, FromBroker: true}
	err := env.worker.processJob(ctx, msg)
	require.NoError(t, err)
	env.worker.settle(discard, msg, err)

	stored, err := env.queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Contains(t, string(stored.Result), `"title":"golang"`)
	assert.Equal(t, []uint64{7}, env.broker.acks)
}

func TestProcessJob_FailureOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		adapterErr    error
		sessionErr    error
		wantRetry     int
		wantScheduled bool
	}{
		{name: "rate limited backs off", adapterErr: domain.RateLimited(domain.PlatformLinkedIn), wantRetry: 1, wantScheduled: true},
		{name: "timeout backs off", adapterErr: domain.TransientError(domain.PlatformLinkedIn, "request failed", context.DeadlineExceeded), wantRetry: 1, wantScheduled: true},
		{name: "session invalid is terminal", adapterErr: domain.SessionInvalid(domain.PlatformLinkedIn, 401), wantRetry: 3},
		{name: "no active session is terminal", sessionErr: fmt.Errorf("linkedin: %w", domain.ErrSessionNotFound), wantRetry: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.adapter.err = tt.adapterErr
			env.sessions.err = tt.sessionErr
			job := env.enqueue(t, false)

			// the outcome is stored on the row, so the message is acknowledged
			require.NoError(t, env.worker.processJob(context.Background(), &JobMessage{JobID: job.ID}))

			stored, err := env.queue.Get(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, stored.Status)
			assert.Equal(t, tt.wantRetry, stored.RetryCount)
			assert.Equal(t, tt.wantScheduled, stored.NextRetryAt != nil)
			assert.NotEmpty(t, stored.ErrorMessage)
		})
	}
}

func TestProcessJob_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)
	job := &domain.ScraperJob{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		Platform:   domain.PlatformLinkedIn,
		Status:     domain.JobStatusPending,
		Parameters: []byte(`{"action":"DELETE"}`),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, env.store.Create(context.Background(), job))

	msg := &JobMessage{JobID: job.ID, DeliveryTag: 3, FromBroker: true}
	err := env.worker.processJob(context.Background(), msg)
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
	env.worker.settle(discard, msg, err)

	stored, err := env.queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal(3))

	requeue, nacked := env.broker.nacks[3]
	assert.True(t, nacked)
	assert.False(t, requeue)
}

func TestProcessJob_AlreadyClaimed(t *testing.T) {
	env := newTestEnv(t)
	job := env.enqueue(t, false)
	_, err := env.queue.MarkProcessing(context.Background(), job.ID)
	require.NoError(t, err)

	err = env.worker.processJob(context.Background(), &JobMessage{JobID: job.ID})
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	assert.False(t, shouldRequeueJob(err))
}

func TestShouldRequeueJob(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "claimed", err: domain.ErrJobAlreadyClaimed, want: false},
		{name: "missing", err: domain.ErrJobNotFound, want: false},
		{name: "invalid payload", err: fmt.Errorf("x: %w", domain.ErrInvalidPayload), want: false},
		{name: "storage down", err: &RetryableError{Err: errors.New("connection refused")}, want: true},
		{name: "unknown", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeueJob(tt.err))
		})
	}
}

func TestPoll_SkipsPendingAutoApplyJobs(t *testing.T) {
	env := newTestEnv(t)
	manual := env.enqueue(t, false)
	env.enqueue(t, true)

	dispatched := env.worker.poll(context.Background())
	require.Equal(t, 1, dispatched)

	msg := <-env.worker.jobsChan
	assert.Equal(t, manual.ID, msg.JobID)
	assert.False(t, msg.FromBroker)
}

func TestMessageDispatcher(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries := make(chan amqp.Delivery, 3)
	jobID := uuid.NewString()
	deliveries <- amqp.Delivery{DeliveryTag: 1, Body: []byte(`not json`)}
	deliveries <- amqp.Delivery{DeliveryTag: 2, Body: []byte(`{"job_id":"abc"}`)}
	deliveries <- amqp.Delivery{DeliveryTag: 3, Body: []byte(`{"job_id":"` + jobID + `"}`)}
	close(deliveries)

	env.worker.startMessageDispatcher(ctx, deliveries)

	msg := <-env.worker.jobsChan
	assert.Equal(t, jobID, msg.JobID)
	assert.Equal(t, uint64(3), msg.DeliveryTag)
	assert.True(t, msg.FromBroker)
	assert.Equal(t, map[uint64]bool{1: false, 2: false}, env.broker.nacks)
}
