// Package linkedin drives LinkedIn job search and Easy Apply through the voyager JSON API.
package linkedin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

const (
	defaultBaseURL  = "https://www.linkedin.com"
	defaultLoginURL = "https://www.linkedin.com/login"
	defaultPageSize = 25
)

// Config for the LinkedIn adapter
type Config struct {
	BaseURL  string
	LoginURL string
	Timeout  time.Duration
	PageSize int
}

// Adapter implements platform.Adapter for LinkedIn
type Adapter struct {
	client   *platform.Client
	auth     platform.Authenticator
	loginURL string
	pageSize int
}

var _ platform.Adapter = (*Adapter)(nil)

func New(cfg Config, sessions platform.SessionReporter, proxies platform.ProxyReporter, auth platform.Authenticator, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	return &Adapter{
		client: platform.NewClient(platform.ClientConfig{
			Platform: domain.PlatformLinkedIn,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
		}, sessions, proxies, logger),
		auth:     auth,
		loginURL: cfg.LoginURL,
		pageSize: platform.PageLimit(cfg.PageSize, defaultPageSize),
	}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformLinkedIn }

// Easy Apply is the only way to apply without leaving LinkedIn
func (a *Adapter) RequiresDirectApply() bool { return true }

func (a *Adapter) CanonicalJobType(raw string) domain.JobType { return canonicalJobType(raw) }

func (a *Adapter) Login(ctx context.Context, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error) {
	bundle, _, err := platform.Authenticate(ctx, a.auth, domain.PlatformLinkedIn, a.loginURL, creds, userID, "li_at")
	if err != nil {
		return nil, err
	}
	if csrf := csrfToken(bundle.Cookies); csrf != "" {
		bundle.Headers["csrf-token"] = csrf
	}
	bundle.Headers["x-restli-protocol-version"] = "2.0.0"
	return bundle, nil
}

// csrfToken is the JSESSIONID cookie without its quotes
func csrfToken(cookies string) string {
	return strings.Trim(platform.CookieValue(cookies, "JSESSIONID"), `"`)
}

func (a *Adapter) BuildSearch(c domain.SearchCriteria) domain.SearchAction {
	filters := map[string]string{}

	var jobTypes []string
	for _, t := range c.JobTypes {
		if code, ok := jobTypeCode(t); ok {
			jobTypes = append(jobTypes, code)
		}
	}
	if len(jobTypes) > 0 {
		filters["f_JT"] = strings.Join(jobTypes, ",")
	}
	if codes := experienceCodes(c.Experience); len(codes) > 0 {
		filters["f_E"] = strings.Join(codes, ",")
	}
	if code, ok := datePostedCode(c.Window); ok {
		filters["f_TPR"] = code
	}
	if bucket, ok := salaryBucket(c.SalaryMin); ok {
		filters["f_SB2"] = bucket
	}

	return domain.SearchAction{
		Keywords: strings.Join(c.Keywords, " OR "),
		Location: c.Location,
		Filters:  filters,
		Limit:    platform.PageLimit(c.Limit, a.pageSize),
	}
}

type searchResponse struct {
	Elements []json.RawMessage `json:"elements"`
}

type jobCard struct {
	JobPostingID     platform.ListingID `json:"jobPostingId"`
	Title            string             `json:"title"`
	CompanyName      string             `json:"companyName"`
	FormattedLoc     string             `json:"formattedLocation"`
	WorkplaceType    string             `json:"workplaceType"`
	EmploymentStatus string             `json:"employmentStatus"`
	EasyApply        bool               `json:"easyApply"`
	ListedAt         int64              `json:"listedAt"`
}

func (a *Adapter) Search(ctx context.Context, sess *domain.Session, action domain.SearchAction) ([]domain.Listing, error) {
	query := url.Values{}
	query.Set("keywords", action.Keywords)
	if action.Location != "" {
		query.Set("location", action.Location)
	}
	for k, v := range action.Filters {
		query.Set(k, v)
	}
	query.Set("start", "0")
	query.Set("count", strconv.Itoa(platform.PageLimit(action.Limit, a.pageSize)))

	var resp searchResponse
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodGet,
		Path:   "/voyager/api/voyagerJobsDashJobCards",
		Query:  query,
	}, &resp)
	if err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(resp.Elements))
	for _, raw := range resp.Elements {
		listing, ok := a.parseCard(raw)
		if !ok {
			continue
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

// parseCard degrades to a listing with unknown fields when a card is malformed,
// and drops it only when not even its id can be recovered
func (a *Adapter) parseCard(raw json.RawMessage) (domain.Listing, bool) {
	var card jobCard
	if err := json.Unmarshal(raw, &card); err != nil {
		card = jobCard{}
		bad, lerr := platform.DecodeFields(raw, map[string]any{
			"jobPostingId":      &card.JobPostingID,
			"title":             &card.Title,
			"companyName":       &card.CompanyName,
			"formattedLocation": &card.FormattedLoc,
			"workplaceType":     &card.WorkplaceType,
			"employmentStatus":  &card.EmploymentStatus,
			"easyApply":         &card.EasyApply,
			"listedAt":          &card.ListedAt,
		})
		if lerr != nil {
			a.client.Logger().Warn("Dropping unparseable job card", slog.String("error", err.Error()))
			return domain.Listing{}, false
		}
		a.client.Logger().Debug("Job card partially parsed", slog.Any("fields", bad))
	}
	id := string(card.JobPostingID)
	if id == "" {
		return domain.Listing{}, false
	}
	return domain.Listing{
		ID:             id,
		Platform:       domain.PlatformLinkedIn,
		Title:          platform.OrUnknown(card.Title),
		CompanyName:    platform.OrUnknown(card.CompanyName),
		Location:       platform.OrUnknown(card.FormattedLoc),
		EmploymentType: card.EmploymentStatus,
		WorkplaceType:  workplaceType(card.WorkplaceType),
		URL:            jobURL(id),
		PostedAt:       platform.MillisToTime(card.ListedAt),
		HasDirectApply: card.EasyApply,
	}, true
}

func jobURL(id string) string {
	return "https://www.linkedin.com/jobs/view/" + id
}

type jobPosting struct {
	JobPostingID   platform.ListingID `json:"jobPostingId"`
	Title          string             `json:"title"`
	CompanyDetails struct {
		Name string `json:"name"`
	} `json:"companyDetails"`
	FormattedLocation string `json:"formattedLocation"`
	Description       struct {
		Text string `json:"text"`
	} `json:"description"`
	EmploymentStatus string   `json:"employmentStatus"`
	WorkplaceTypes   []string `json:"workplaceTypes"`
	Skills           []string `json:"skills"`
	Industries       []string `json:"industries"`
	ExperienceYears  int      `json:"experienceYears"`
	Salary           *struct {
		Min      float64 `json:"min"`
		Max      float64 `json:"max"`
		Currency string  `json:"currency"`
	} `json:"salary"`
	ApplyMethod struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"applyMethod"`
	ListedAt int64 `json:"listedAt"`
}

func (a *Adapter) GetDetails(ctx context.Context, sess *domain.Session, listingID string) (*domain.Listing, error) {
	var posting jobPosting
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodGet,
		Path:   "/voyager/api/jobs/jobPostings/" + url.PathEscape(listingID),
	}, &posting)
	if err != nil {
		return nil, err
	}

	listing := &domain.Listing{
		ID:              listingID,
		Platform:        domain.PlatformLinkedIn,
		Title:           platform.OrUnknown(posting.Title),
		CompanyName:     platform.OrUnknown(posting.CompanyDetails.Name),
		Location:        platform.OrUnknown(posting.FormattedLocation),
		Description:     posting.Description.Text,
		Skills:          posting.Skills,
		EmploymentType:  posting.EmploymentStatus,
		WorkplaceType:   domain.WorkplaceUnknown,
		ExperienceYears: posting.ExperienceYears,
		URL:             jobURL(listingID),
		PostedAt:        platform.MillisToTime(posting.ListedAt),
		HasDirectApply:  platform.NormalizeToken(posting.ApplyMethod.Type) == "EASY_APPLY",
	}
	if len(posting.WorkplaceTypes) > 0 {
		listing.WorkplaceType = workplaceType(posting.WorkplaceTypes[0])
	}
	if len(posting.Industries) > 0 {
		listing.Industry = strings.Join(posting.Industries, ", ")
	}
	if posting.Salary != nil {
		listing.SalaryMin = posting.Salary.Min
		listing.SalaryMax = posting.Salary.Max
		listing.SalaryCurrency = posting.Salary.Currency
	}
	return listing, nil
}

type applyResponse struct {
	ApplicationID string `json:"applicationId"`
}

func (a *Adapter) Apply(ctx context.Context, sess *domain.Session, action domain.ApplyAction) (*domain.ApplyResult, error) {
	listing, err := a.GetDetails(ctx, sess, action.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.HasDirectApply {
		return nil, domain.ApplyNotSupported(domain.PlatformLinkedIn, action.ListingID)
	}

	headers := map[string]string{}
	if csrf := csrfToken(sess.Cookies); csrf != "" {
		headers["csrf-token"] = csrf
	}

	var resp applyResponse
	err = a.client.DoJSON(ctx, sess, platform.Request{
		Method:  http.MethodPost,
		Path:    "/voyager/api/jobs/easyApply/" + url.PathEscape(action.ListingID) + "/submit",
		Headers: headers,
		JSON: map[string]string{
			"resumeUrl":   action.ResumeURL,
			"coverLetter": action.CoverLetter,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &domain.ApplyResult{
		ListingID:     action.ListingID,
		ApplicationID: resp.ApplicationID,
		Message:       "Easy Apply submitted",
		AppliedAt:     time.Now().UTC(),
	}, nil
}
