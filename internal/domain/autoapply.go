package domain

import (
	"strings"
	"time"
)

// AutoApplyConfig holds a user's unattended application preferences and quota counters
type AutoApplyConfig struct {
	UserID                string
	IsEnabled             bool
	DailyLimit            int
	MonthlyLimit          int
	ApplicationsToday     int
	ApplicationsThisMonth int
	MatchThreshold        int
	Keywords              []string
	ExcludedKeywords      []string
	Locations             []string
	Industries            []string
	JobTypes              []JobType
	ExperienceMax         int
	SalaryMin             int
	ExcludedCompanies     []string
	DefaultResumeID       string
	DefaultCoverLetterID  string
	UpdatedAt             time.Time
}

// QuotaReached reports whether either the daily or monthly cap is met
func (c *AutoApplyConfig) QuotaReached() bool {
	if c.DailyLimit > 0 && c.ApplicationsToday >= c.DailyLimit {
		return true
	}
	return c.MonthlyLimit > 0 && c.ApplicationsThisMonth >= c.MonthlyLimit
}

// SearchCriteria converts the preferences into a platform-neutral search
func (c *AutoApplyConfig) SearchCriteria(window DateWindow, limit int) SearchCriteria {
	location := ""
	if len(c.Locations) > 0 {
		location = c.Locations[0]
	}
	return SearchCriteria{
		Keywords:   c.Keywords,
		Location:   location,
		JobTypes:   c.JobTypes,
		Experience: ExperienceLevelForYears(c.ExperienceMax),
		SalaryMin:  c.SalaryMin,
		Window:     window,
		Limit:      limit,
	}
}

// SplitList parses a comma separated setting, dropping blanks
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "SUCCESS"
	HistoryFailed  HistoryStatus = "FAILED"
	HistorySkipped HistoryStatus = "SKIPPED"
)

type HistoryReason string

const (
	ReasonApplied         HistoryReason = "APPLIED"
	ReasonLowMatch        HistoryReason = "LOW_MATCH"
	ReasonExcludedKeyword HistoryReason = "EXCLUDED_KEYWORD"
	ReasonExcludedCompany HistoryReason = "EXCLUDED_COMPANY"
	ReasonLimitReached    HistoryReason = "LIMIT_REACHED"
	ReasonError           HistoryReason = "ERROR"
)

// HistoryEntry is the append-only audit record of one auto-apply decision
type HistoryEntry struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	JobID      string        `json:"job_id,omitempty"`
	Platform   Platform      `json:"platform,omitempty"`
	ListingID  string        `json:"listing_id,omitempty"`
	Status     HistoryStatus `json:"status"`
	Reason     HistoryReason `json:"reason"`
	Message    string        `json:"message"`
	MatchScore *int          `json:"match_score,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// PageCursor positions keyset pagination over (created_at, id) descending
type PageCursor struct {
	CreatedAt time.Time
	ID        string
}

// JobPosting is the product's own record of an external listing
type JobPosting struct {
	ID          string
	Platform    Platform
	ExternalID  string
	Title       string
	CompanyName string
	Location    string
	Description string
	URL         string
	CreatedAt   time.Time
}

// Application mirrors an external application into the product's applications table
type Application struct {
	ID          string
	UserID      string
	JobID       string
	CoverLetter string
	ResumeURL   string
	Source      string
	CreatedAt   time.Time
}
