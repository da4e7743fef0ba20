// Package indeed drives Indeed search and Indeed Apply.
package indeed

import (
	"context"
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
	defaultBaseURL  = "https://www.indeed.com"
	defaultLoginURL = "https://secure.indeed.com/auth"
	defaultPageSize = 15
)

type Config struct {
	BaseURL  string
	LoginURL string
	Timeout  time.Duration
	PageSize int
}

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
			Platform: domain.PlatformIndeed,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
		}, sessions, proxies, logger),
		auth:     auth,
		loginURL: cfg.LoginURL,
		pageSize: platform.PageLimit(cfg.PageSize, defaultPageSize),
	}
}

func (a *Adapter) Platform() domain.Platform { return domain.PlatformIndeed }

// Only Indeed Apply listings can be applied to without leaving the site
func (a *Adapter) RequiresDirectApply() bool { return true }

func (a *Adapter) CanonicalJobType(raw string) domain.JobType { return canonicalJobType(raw) }

func (a *Adapter) Login(ctx context.Context, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error) {
	bundle, _, err := platform.Authenticate(ctx, a.auth, domain.PlatformIndeed, a.loginURL, creds, userID, "CTK", "SOCK")
	return bundle, err
}

func (a *Adapter) BuildSearch(c domain.SearchCriteria) domain.SearchAction {
	filters := map[string]string{}

	// jt takes a single value
	for _, t := range c.JobTypes {
		if v, ok := jobTypeParam(t); ok {
			filters["jt"] = v
			break
		}
	}
	if v, ok := experienceParam(c.Experience); ok {
		filters["explvl"] = v
	}
	if v, ok := fromAge(c.Window); ok {
		filters["fromage"] = v
	}
	if c.SalaryMin > 0 {
		filters["salaryType"] = "$" + strconv.Itoa(c.SalaryMin) + "+"
	}

	return domain.SearchAction{
		Keywords: strings.Join(c.Keywords, " "),
		Location: c.Location,
		Filters:  filters,
		Limit:    platform.PageLimit(c.Limit, a.pageSize),
	}
}

type salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

type result struct {
	JobKey             string   `json:"jobkey"`
	Title              string   `json:"title"`
	Company            string   `json:"company"`
	FormattedLocation  string   `json:"formattedLocation"`
	JobTypes           []string `json:"jobTypes"`
	RemoteWorkModel    string   `json:"remoteWorkModel"`
	IndeedApplyEnabled bool     `json:"indeedApplyEnabled"`
	PubDate            int64    `json:"pubDate"`
	Salary             *salary  `json:"salary"`

	Description        string `json:"description"`
	Industry           string `json:"industry"`
	TaxonomyAttributes struct {
		Skills []string `json:"skills"`
	} `json:"taxonomyAttributes"`
}

func (r *result) toListing() domain.Listing {
	l := domain.Listing{
		ID:             r.JobKey,
		Platform:       domain.PlatformIndeed,
		Title:          platform.OrUnknown(r.Title),
		CompanyName:    platform.OrUnknown(r.Company),
		Location:       platform.OrUnknown(r.FormattedLocation),
		Description:    r.Description,
		Skills:         r.TaxonomyAttributes.Skills,
		WorkplaceType:  remoteModel(r.RemoteWorkModel),
		Industry:       r.Industry,
		URL:            "https://www.indeed.com/viewjob?jk=" + url.QueryEscape(r.JobKey),
		PostedAt:       platform.MillisToTime(r.PubDate),
		HasDirectApply: r.IndeedApplyEnabled,
	}
	if len(r.JobTypes) > 0 {
		l.EmploymentType = r.JobTypes[0]
	}
	if r.Salary != nil {
		l.SalaryMin = r.Salary.Min
		l.SalaryMax = r.Salary.Max
		l.SalaryCurrency = r.Salary.Currency
	}
	return l
}

func (a *Adapter) Search(ctx context.Context, sess *domain.Session, action domain.SearchAction) ([]domain.Listing, error) {
	query := url.Values{}
	query.Set("q", action.Keywords)
	if action.Location != "" {
		query.Set("l", action.Location)
	}
	for k, v := range action.Filters {
		query.Set(k, v)
	}
	query.Set("limit", strconv.Itoa(platform.PageLimit(action.Limit, a.pageSize)))

	var resp struct {
		Results []result `json:"results"`
	}
	if err := a.client.DoJSON(ctx, sess, platform.Request{Method: http.MethodGet, Path: "/api/jobs/search", Query: query}, &resp); err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(resp.Results))
	for i := range resp.Results {
		if resp.Results[i].JobKey == "" {
			continue
		}
		listings = append(listings, resp.Results[i].toListing())
	}
	return listings, nil
}

func (a *Adapter) GetDetails(ctx context.Context, sess *domain.Session, listingID string) (*domain.Listing, error) {
	var r result
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodGet,
		Path:   "/api/jobs/viewjob",
		Query:  url.Values{"jk": {listingID}},
	}, &r)
	if err != nil {
		return nil, err
	}
	r.JobKey = listingID
	listing := r.toListing()
	return &listing, nil
}

func (a *Adapter) Apply(ctx context.Context, sess *domain.Session, action domain.ApplyAction) (*domain.ApplyResult, error) {
	listing, err := a.GetDetails(ctx, sess, action.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.HasDirectApply {
		return nil, domain.ApplyNotSupported(domain.PlatformIndeed, action.ListingID)
	}

	var resp struct {
		ApplyID string `json:"applyId"`
	}
	err = a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodPost,
		Path:   "/api/indeedapply/submit",
		JSON: map[string]string{
			"jobKey":      action.ListingID,
			"resumeUrl":   action.ResumeURL,
			"coverLetter": action.CoverLetter,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &domain.ApplyResult{
		ListingID:     action.ListingID,
		ApplicationID: resp.ApplyID,
		Message:       "Indeed Apply submitted",
		AppliedAt:     time.Now().UTC(),
	}, nil
}
