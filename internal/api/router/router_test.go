package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/autoapply-be/internal/api/dto"
	"github.com/cuongbtq/autoapply-be/internal/api/handler"
	"github.com/cuongbtq/autoapply-be/internal/autoapply"
	"github.com/cuongbtq/autoapply-be/internal/cache"
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/queue"
	"github.com/cuongbtq/autoapply-be/internal/storage/memory"
)

type fakeSessions struct {
	sessions    map[string]*domain.Session
	loginErr    error
	invalidated []string
	clientSide  bool
}

func (f *fakeSessions) Login(ctx context.Context, userID string, p domain.Platform, creds domain.LoginCredentials) (*domain.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.CreateOrRefresh(ctx, userID, p, domain.CredentialBundle{Cookies: "li_at=x"}, false)
}

func (f *fakeSessions) CreateOrRefresh(ctx context.Context, userID string, p domain.Platform, b domain.CredentialBundle, isClientSide bool) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Platform:  p,
		Status:    domain.SessionStatusActive,
		Cookies:   b.Cookies,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.clientSide = isClientSide
	f.sessions[userID+"/"+string(p)] = s
	return s, nil
}

func (f *fakeSessions) GetActive(ctx context.Context, userID string, p domain.Platform) (*domain.Session, error) {
	s, ok := f.sessions[userID+"/"+string(p)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Invalidate(ctx context.Context, id, reason string) error {
	for _, s := range f.sessions {
		if s.ID == id {
			f.invalidated = append(f.invalidated, id)
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

type fakeRunner struct {
	err       error
	triggered []string
}

func (f *fakeRunner) Trigger(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, userID)
	return nil
}

type unhealthy struct{}

func (unhealthy) HealthCheck(ctx context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	router    *gin.Engine
	sessions  *fakeSessions
	runner    *fakeRunner
	jobs      *queue.Queue
	history   *memory.HistoryStore
	canceller *autoapply.Canceller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		sessions:  &fakeSessions{sessions: map[string]*domain.Session{}},
		runner:    &fakeRunner{},
		jobs:      queue.New(memory.NewJobStore(), nil, queue.Config{MaxRetries: 3, BaseDelay: time.Minute}, logger),
		history:   memory.NewHistoryStore(),
		canceller: autoapply.NewCanceller(cache.NewMemory(), time.Hour),
	}
	env.router = SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Sessions:  env.sessions,
		Jobs:      env.jobs,
		AutoApply: env.runner,
		Canceller: env.canceller,
		History:   env.history,
	}, nil)
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	gin.SetMode(gin.TestMode)
	r := SetupRouter(&handler.Dependencies{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, unhealthy{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionRoutes(t *testing.T) {
	env := newTestEnv(t)

	t.Run("import hides credentials", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/sessions", map[string]any{
			"user_id":  "user-1",
			"platform": "linkedin",
			"cookies":  "li_at=secret",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.NotContains(t, w.Body.String(), "secret")
		assert.True(t, env.sessions.clientSide)

		var got dto.SessionDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "LINKEDIN", got.Platform)
		assert.Equal(t, "ACTIVE", got.Status)
	})

	t.Run("get active", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/sessions/user-1/LINKEDIN", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = env.do(http.MethodGet, "/api/v1/sessions/user-1/INDEED", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = env.do(http.MethodGet, "/api/v1/sessions/user-1/MONSTER", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalidate", func(t *testing.T) {
		id := env.sessions.sessions["user-1/LINKEDIN"].ID
		w := env.do(http.MethodDelete, "/api/v1/sessions/"+id, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{id}, env.sessions.invalidated)

		w = env.do(http.MethodDelete, "/api/v1/sessions/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(http.MethodDelete, "/api/v1/sessions/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("login failure maps to 401", func(t *testing.T) {
		env.sessions.loginErr = domain.LoginFailed(domain.PlatformCatho, "bad password", nil)
		defer func() { env.sessions.loginErr = nil }()

		w := env.do(http.MethodPost, "/api/v1/sessions/login", map[string]any{
			"user_id":  "user-1",
			"platform": "CATHO",
			"username": "a@b.c",
			"password": "x",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/sessions/login", map[string]any{"user_id": "user-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJobRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			name: "search",
			body: map[string]any{"user_id": "user-1", "platform": "INDEED", "action": map[string]any{"action": "SEARCH", "search": map[string]any{"keywords": "go"}}},
			want: http.StatusCreated,
		},
		{
			name: "detail without listing",
			body: map[string]any{"user_id": "user-1", "platform": "INDEED", "action": map[string]any{"action": "DETAIL"}},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown platform",
			body: map[string]any{"user_id": "user-1", "platform": "MONSTER", "action": map[string]any{"action": "SEARCH"}},
			want: http.StatusBadRequest,
		},
		{
			name: "missing action",
			body: map[string]any{"user_id": "user-1", "platform": "INDEED"},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("get and retry", func(t *testing.T) {
		job, err := env.jobs.Enqueue(context.Background(), "user-2", domain.PlatformCatho, domain.DetailAction{ListingID: "42"}, false)
		require.NoError(t, err)

		w := env.do(http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got dto.JobDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "PENDING", got.Status)
		assert.False(t, got.IsAutoApply)

		// only FAILED jobs can be retried
		w = env.do(http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		_, err = env.jobs.MarkProcessing(context.Background(), job.ID)
		require.NoError(t, err)
		_, err = env.jobs.MarkFailed(context.Background(), job.ID, "timeout")
		require.NoError(t, err)

		w = env.do(http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "PENDING", got.Status)
		assert.Equal(t, 1, got.RetryCount)
	})

	t.Run("invalid and unknown ids", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/jobs/123", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil).Code)
	})
}

func TestAutoApplyRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("run", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/autoapply/user-1/run", nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"user-1"}, env.runner.triggered)
	})

	t.Run("run in progress keeps a pending cancel", func(t *testing.T) {
		env.runner.err = autoapply.ErrRunInProgress
		defer func() { env.runner.err = nil }()
		require.NoError(t, env.canceller.Cancel(ctx, "user-1"))
		defer func() { require.NoError(t, env.canceller.Clear(ctx, "user-1")) }()

		w := env.do(http.MethodPost, "/api/v1/autoapply/user-1/run", nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		cancelled, err := env.canceller.Cancelled(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, cancelled)
	})

	t.Run("shutting down", func(t *testing.T) {
		env.runner.err = autoapply.ErrShuttingDown
		defer func() { env.runner.err = nil }()

		w := env.do(http.MethodPost, "/api/v1/autoapply/user-1/run", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/v1/autoapply/user-1/cancel", nil)
		assert.Equal(t, http.StatusAccepted, w.Code)

		cancelled, err := env.canceller.Cancelled(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, cancelled)
	})
}

func TestListHistory_Pagination(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, env.history.Append(context.Background(), &domain.HistoryEntry{
			ID:        uuid.NewString(),
			UserID:    "user-1",
			Status:    domain.HistorySkipped,
			Reason:    domain.ReasonLowMatch,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	var seen []string
	cursor := ""
	for page := 0; page < 3; page++ {
		path := "/api/v1/autoapply/user-1/history?page_size=2"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		w := env.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp dto.ListHistoryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		for _, e := range resp.Entries {
			seen = append(seen, e.CreatedAt)
		}
		cursor = resp.NextCursor
		if cursor == "" {
			break
		}
	}

	require.Len(t, seen, 5)
	assert.Equal(t, base.Add(4*time.Minute).Format(time.RFC3339Nano), seen[0])
	assert.Empty(t, cursor)

	w := env.do(http.MethodGet, "/api/v1/autoapply/user-1/history?cursor=not*base64", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil)
	_, err := uuid.Parse(w.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
