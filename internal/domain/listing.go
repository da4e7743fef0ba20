package domain

import "time"

// JobType is the canonical employment type shared by every platform
type JobType string

const (
	JobTypeFullTime   JobType = "FULL_TIME"
	JobTypePartTime   JobType = "PART_TIME"
	JobTypeContract   JobType = "CONTRACT"
	JobTypeTemporary  JobType = "TEMPORARY"
	JobTypeInternship JobType = "INTERNSHIP"
	JobTypeFreelance  JobType = "FREELANCE"
	JobTypeUnknown    JobType = "UNKNOWN"
)

var AllJobTypes = []JobType{
	JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeTemporary, JobTypeInternship, JobTypeFreelance,
}

// WorkplaceType is the canonical on-site/remote classification
type WorkplaceType string

const (
	WorkplaceOnSite  WorkplaceType = "ON_SITE"
	WorkplaceRemote  WorkplaceType = "REMOTE"
	WorkplaceHybrid  WorkplaceType = "HYBRID"
	WorkplaceUnknown WorkplaceType = "UNKNOWN"
)

// ExperienceLevel is the canonical seniority bucket used to build searches
type ExperienceLevel string

const (
	ExperienceAny    ExperienceLevel = "ANY"
	ExperienceEntry  ExperienceLevel = "ENTRY"
	ExperienceJunior ExperienceLevel = "JUNIOR"
	ExperienceMid    ExperienceLevel = "MID"
	ExperienceSenior ExperienceLevel = "SENIOR"
	ExperienceLead   ExperienceLevel = "LEAD"
)

// ExperienceLevelForYears maps a maximum years-of-experience setting to a level.
// Zero or negative means the user did not restrict experience.
func ExperienceLevelForYears(years int) ExperienceLevel {
	switch {
	case years <= 0:
		return ExperienceAny
	case years <= 1:
		return ExperienceEntry
	case years <= 3:
		return ExperienceJunior
	case years <= 5:
		return ExperienceMid
	case years <= 8:
		return ExperienceSenior
	default:
		return ExperienceLead
	}
}

// DateWindow limits searches to recently posted listings
type DateWindow string

const (
	DateWindowAny       DateWindow = "ANY"
	DateWindowPastDay   DateWindow = "PAST_DAY"
	DateWindowPastWeek  DateWindow = "PAST_WEEK"
	DateWindowPastMonth DateWindow = "PAST_MONTH"
)

// SearchCriteria is the platform-neutral description of a search.
// Adapters translate it into a SearchAction in their own vocabulary.
type SearchCriteria struct {
	Keywords   []string        `json:"keywords"`
	Location   string          `json:"location,omitempty"`
	JobTypes   []JobType       `json:"job_types,omitempty"`
	Experience ExperienceLevel `json:"experience,omitempty"`
	SalaryMin  int             `json:"salary_min,omitempty"`
	Window     DateWindow      `json:"window,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// Listing is a normalized job posting returned by an adapter.
// Fields an adapter could not parse hold "Unknown" or their zero value.
type Listing struct {
	ID              string        `json:"id"`
	Platform        Platform      `json:"platform"`
	Title           string        `json:"title"`
	CompanyName     string        `json:"company_name"`
	Location        string        `json:"location"`
	Description     string        `json:"description,omitempty"`
	Skills          []string      `json:"skills,omitempty"`
	SalaryMin       float64       `json:"salary_min,omitempty"`
	SalaryMax       float64       `json:"salary_max,omitempty"`
	SalaryCurrency  string        `json:"salary_currency,omitempty"`
	EmploymentType  string        `json:"employment_type,omitempty"`
	WorkplaceType   WorkplaceType `json:"workplace_type,omitempty"`
	ExperienceYears int           `json:"experience_years,omitempty"`
	Industry        string        `json:"industry,omitempty"`
	URL             string        `json:"url,omitempty"`
	PostedAt        *time.Time    `json:"posted_at,omitempty"`
	HasDirectApply  bool          `json:"has_direct_apply"`
}

// UnknownField is the placeholder for text fields an adapter failed to parse
const UnknownField = "Unknown"

// ApplyResult is what a platform reports back after a successful application
type ApplyResult struct {
	ListingID     string    `json:"listing_id"`
	ApplicationID string    `json:"application_id,omitempty"`
	Message       string    `json:"message,omitempty"`
	AppliedAt     time.Time `json:"applied_at"`
}
