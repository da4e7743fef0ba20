package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{in: "linkedin", want: PlatformLinkedIn},
		{in: " InfoJobs ", want: PlatformInfoJobs},
		{in: "CATHO", want: PlatformCatho},
		{in: "indeed", want: PlatformIndeed},
		{in: "monster", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlatform(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownPlatform)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionRoundTrip(t *testing.T) {
	actions := []Action{
		SearchAction{Keywords: "golang", Location: "Remote", Filters: map[string]string{"f_JT": "F"}, Limit: 10},
		DetailAction{ListingID: "42"},
		ApplyAction{ListingID: "42", ResumeURL: "https://cdn/cv.pdf"},
	}
	for _, a := range actions {
		raw, err := EncodeAction(a)
		require.NoError(t, err)
		got, err := DecodeAction(raw)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestDecodeAction_Invalid(t *testing.T) {
	for _, raw := range []string{``, `not json`, `{"action":"DELETE"}`, `{"action":"APPLY"}`, `{"action":"DETAIL","detail":{}}`} {
		_, err := DecodeAction([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidPayload, raw)
	}

	_, err := EncodeAction(ApplyAction{})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("connection reset"), want: true},
		{name: "invalid payload", err: fmt.Errorf("wrap: %w", ErrInvalidPayload), want: false},
		{name: "no session", err: ErrSessionNotFound, want: false},
		{name: "rate limited", err: RateLimited(PlatformLinkedIn), want: true},
		{name: "transient", err: TransientError(PlatformCatho, "timeout", nil), want: true},
		{name: "parse", err: ParseError(PlatformIndeed, "bad body", nil), want: true},
		{name: "session invalid", err: SessionInvalid(PlatformLinkedIn, 401), want: false},
		{name: "apply not supported", err: ApplyNotSupported(PlatformLinkedIn, "1"), want: false},
		{name: "rejected", err: RequestRejected(PlatformInfoJobs, 404, "gone"), want: false},
		{name: "wrapped platform error", err: fmt.Errorf("execute: %w", RateLimited(PlatformCatho)), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestPlatformError_CarriesStack(t *testing.T) {
	err := LoginFailed(PlatformLinkedIn, "bad password", nil)
	assert.NotEmpty(t, err.Stack)
	assert.Equal(t, "LINKEDIN LOGIN_FAILED: bad password", err.Error())
}

func TestExperienceLevelForYears(t *testing.T) {
	cases := map[int]ExperienceLevel{
		-1: ExperienceAny, 0: ExperienceAny, 1: ExperienceEntry, 3: ExperienceJunior,
		5: ExperienceMid, 8: ExperienceSenior, 15: ExperienceLead,
	}
	for years, want := range cases {
		assert.Equal(t, want, ExperienceLevelForYears(years), years)
	}
}

func TestQuotaReached(t *testing.T) {
	tests := []struct {
		name string
		cfg  AutoApplyConfig
		want bool
	}{
		{name: "under both", cfg: AutoApplyConfig{DailyLimit: 10, MonthlyLimit: 100, ApplicationsToday: 3, ApplicationsThisMonth: 30}},
		{name: "daily met", cfg: AutoApplyConfig{DailyLimit: 10, MonthlyLimit: 100, ApplicationsToday: 10}, want: true},
		{name: "monthly met", cfg: AutoApplyConfig{DailyLimit: 10, MonthlyLimit: 100, ApplicationsThisMonth: 100}, want: true},
		{name: "unlimited", cfg: AutoApplyConfig{ApplicationsToday: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.QuotaReached())
		})
	}
}

func TestJobClaimability(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	assert.True(t, (&ScraperJob{Status: JobStatusPending}).IsClaimable(now, 3))
	assert.True(t, (&ScraperJob{Status: JobStatusFailed, RetryCount: 1, NextRetryAt: &past}).IsClaimable(now, 3))
	assert.False(t, (&ScraperJob{Status: JobStatusFailed, RetryCount: 1, NextRetryAt: &future}).IsClaimable(now, 3))
	assert.False(t, (&ScraperJob{Status: JobStatusFailed, RetryCount: 3, NextRetryAt: &past}).IsClaimable(now, 3))
	assert.False(t, (&ScraperJob{Status: JobStatusProcessing}).IsClaimable(now, 3))

	assert.True(t, (&ScraperJob{Status: JobStatusFailed, RetryCount: 3}).IsTerminal(3))
	assert.False(t, (&ScraperJob{Status: JobStatusFailed, RetryCount: 2}).IsTerminal(3))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"go", "rust"}, SplitList(" go, ,rust ,"))
	assert.Empty(t, SplitList(""))
}
