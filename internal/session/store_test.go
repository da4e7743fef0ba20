package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/proxy"
	"github.com/cuongbtq/autoapply-be/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	bundle *domain.CredentialBundle
	err    error
}

func (a *stubAuth) Login(ctx context.Context, platform domain.Platform, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error) {
	return a.bundle, a.err
}

type testEnv struct {
	store *Store
	repo  *memory.SessionStore
	auth  *stubAuth
	now   time.Time
	pool  *proxy.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		repo: memory.NewSessionStore(),
		auth: &stubAuth{},
		now:  time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		pool: proxy.NewPool(nil, time.Minute, logger),
	}
	env.pool.Add(proxy.Proxy{Host: "10.1.1.1", Port: 8080, Country: "BR"})

	users := memory.NewUserStore(
		&domain.User{ID: "free-user", SubscriptionTier: domain.TierFree},
		&domain.User{ID: "pro-user", SubscriptionTier: domain.TierPro},
	)
	env.store = NewStore(env.repo, users, env.pool, env.auth, Config{
		Expiry: map[domain.Platform]time.Duration{
			domain.PlatformLinkedIn: 7 * 24 * time.Hour,
			domain.PlatformIndeed:   24 * time.Hour,
		},
		DefaultExpiry: 12 * time.Hour,
		ProxyCountry:  "BR",
	}, logger)
	env.store.now = func() time.Time { return env.now }
	return env
}

func bundle(cookies string) domain.CredentialBundle {
	return domain.CredentialBundle{Cookies: cookies, Headers: map[string]string{"x-test": "1"}}
}

func TestCreateOrRefresh_SingleActivePerPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformLinkedIn, bundle("li_at=1"), false)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, first.Status)
	assert.NotEmpty(t, first.UserAgent)
	assert.Equal(t, env.now.Add(7*24*time.Hour), first.ExpiresAt)

	env.now = env.now.Add(time.Hour)
	second, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformLinkedIn, bundle("li_at=2"), false)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "li_at=2", second.Cookies)
	assert.Equal(t, env.now.Add(7*24*time.Hour), second.ExpiresAt)

	active := 0
	for _, s := range env.repo.All() {
		if s.UserID == "pro-user" && s.Platform == domain.PlatformLinkedIn && s.Status == domain.SessionStatusActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestCreateOrRefresh_NewRowAfterInvalidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformIndeed, bundle("CTK=1; SOCK=2"), false)
	require.NoError(t, err)
	require.NoError(t, env.store.Invalidate(ctx, first.ID, "401 from platform"))

	second, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformIndeed, bundle("CTK=3; SOCK=4"), false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, env.repo.All(), 2)
}

func TestCreateOrRefresh_ProxyEligibility(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		clientSide bool
		wantProxy  bool
	}{
		{name: "paid tier server side", userID: "pro-user", wantProxy: true},
		{name: "paid tier client side", userID: "pro-user", clientSide: true, wantProxy: false},
		{name: "lowest tier", userID: "free-user", wantProxy: false},
		{name: "unknown user", userID: "ghost", wantProxy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			sess, err := env.store.CreateOrRefresh(context.Background(), tt.userID, domain.PlatformCatho, bundle("cathoSession=x"), tt.clientSide)
			require.NoError(t, err)
			if tt.wantProxy {
				assert.Equal(t, "http://10.1.1.1:8080", sess.ProxyURL)
			} else {
				assert.Empty(t, sess.ProxyURL)
			}
			assert.Equal(t, env.now.Add(12*time.Hour), sess.ExpiresAt)
		})
	}
}

func TestCreateOrRefresh_RefreshKeepsProxy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformCatho, bundle("cathoSession=1"), false)
	require.NoError(t, err)
	require.Equal(t, "http://10.1.1.1:8080", first.ProxyURL)

	// client-side refresh assigns no proxy of its own
	refreshed, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformCatho, bundle("cathoSession=2"), true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, refreshed.ID)
	assert.Equal(t, "cathoSession=2", refreshed.Cookies)
	assert.Equal(t, "http://10.1.1.1:8080", refreshed.ProxyURL)
}

func TestCreateOrRefresh_KeepsProvidedUserAgent(t *testing.T) {
	env := newTestEnv(t)
	b := bundle("li_at=1")
	b.UserAgent = "custom-agent"

	sess, err := env.store.CreateOrRefresh(context.Background(), "free-user", domain.PlatformLinkedIn, b, true)
	require.NoError(t, err)
	assert.Equal(t, "custom-agent", sess.UserAgent)

	_, err = env.store.CreateOrRefresh(context.Background(), "free-user", domain.PlatformLinkedIn, domain.CredentialBundle{}, true)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	t.Run("wrong credentials create no session", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.err = domain.LoginFailed(domain.PlatformLinkedIn, "wrong password", nil)

		sess, err := env.store.Login(context.Background(), "pro-user", domain.PlatformLinkedIn, domain.LoginCredentials{Username: "a", Password: "b"})
		require.Error(t, err)
		assert.Nil(t, sess)
		assert.True(t, domain.IsKind(err, domain.KindLoginFailed))
		assert.Empty(t, env.repo.All())
	})

	t.Run("unexpected errors surface as login failures", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.err = errors.New("browser crashed")

		_, err := env.store.Login(context.Background(), "pro-user", domain.PlatformLinkedIn, domain.LoginCredentials{})
		assert.True(t, domain.IsKind(err, domain.KindLoginFailed))
		assert.Empty(t, env.repo.All())
	})

	t.Run("success stores the bundle", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.bundle = &domain.CredentialBundle{Cookies: "li_at=abc", UserAgent: "ua"}

		sess, err := env.store.Login(context.Background(), "pro-user", domain.PlatformLinkedIn, domain.LoginCredentials{})
		require.NoError(t, err)
		assert.Equal(t, "li_at=abc", sess.Cookies)
		assert.Equal(t, "ua", sess.UserAgent)
	})
}

func TestStatusTransitionsAndSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	li, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformLinkedIn, bundle("li_at=1"), false)
	require.NoError(t, err)
	in, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformIndeed, bundle("CTK=1"), false)
	require.NoError(t, err)
	ca, err := env.store.CreateOrRefresh(ctx, "pro-user", domain.PlatformCatho, bundle("cathoSession=1"), false)
	require.NoError(t, err)

	require.NoError(t, env.store.RecordRequest(ctx, li.ID))
	require.NoError(t, env.store.RecordRequest(ctx, li.ID))
	got, err := env.store.Get(ctx, li.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RequestCount)
	require.NotNil(t, got.LastRequestAt)

	require.NoError(t, env.store.MarkRateLimited(ctx, ca.ID))
	_, err = env.store.GetActive(ctx, "pro-user", domain.PlatformCatho)
	assert.True(t, IsNotFound(err))

	// Indeed expires after 24h, LinkedIn after 7 days
	env.now = env.now.Add(25 * time.Hour)
	_, err = env.store.GetActive(ctx, "pro-user", domain.PlatformIndeed)
	assert.True(t, IsNotFound(err), "expired sessions are unusable before the sweep runs")

	n, err := env.store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = env.store.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusExpired, got.Status)

	active, err := env.store.ListActive(ctx, "pro-user")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.PlatformLinkedIn, active[0].Platform)

	env.now = env.now.Add(31 * 24 * time.Hour)
	purged, err := env.store.PurgeInactive(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}
