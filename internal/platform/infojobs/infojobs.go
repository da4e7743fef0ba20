// Package infojobs drives the InfoJobs offer API.
package infojobs

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
	defaultBaseURL  = "https://api.infojobs.net"
	defaultLoginURL = "https://www.infojobs.net/candidate/login"
	defaultPageSize = 20
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
			Platform: domain.PlatformInfoJobs,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
		}, sessions, proxies, logger),
		auth:     auth,
		loginURL: cfg.LoginURL,
		pageSize: platform.PageLimit(cfg.PageSize, defaultPageSize),
	}
}

func (a *Adapter) Platform() domain.Platform                  { return domain.PlatformInfoJobs }
func (a *Adapter) RequiresDirectApply() bool                  { return false }
func (a *Adapter) CanonicalJobType(raw string) domain.JobType { return canonicalJobType(raw) }

func (a *Adapter) Login(ctx context.Context, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error) {
	bundle, _, err := platform.Authenticate(ctx, a.auth, domain.PlatformInfoJobs, a.loginURL, creds, userID, "access_token")
	if err != nil {
		return nil, err
	}
	bundle.Headers["Authorization"] = "Bearer " + platform.CookieValue(bundle.Cookies, "access_token")
	return bundle, nil
}

func (a *Adapter) BuildSearch(c domain.SearchCriteria) domain.SearchAction {
	filters := map[string]string{"sinceDate": sinceDate(c.Window)}

	var contracts, days []string
	for _, t := range c.JobTypes {
		if v, ok := contractType(t); ok {
			contracts = append(contracts, v)
		}
		if v, ok := workDay(t); ok {
			days = append(days, v)
		}
	}
	if len(contracts) > 0 {
		filters["contractType"] = strings.Join(contracts, ",")
	}
	if len(days) > 0 {
		filters["workDay"] = strings.Join(days, ",")
	}
	if v, ok := experienceMin(c.Experience); ok {
		filters["experienceMin"] = v
	}
	if c.SalaryMin > 0 {
		filters["salaryMin"] = strconv.Itoa(c.SalaryMin)
		filters["salaryPeriod"] = "bruto-anual"
	}

	return domain.SearchAction{
		Keywords: strings.Join(c.Keywords, " "),
		Location: c.Location,
		Filters:  filters,
		Limit:    platform.PageLimit(c.Limit, a.pageSize),
	}
}

type valueField struct {
	Value string `json:"value"`
}

type offerSummary struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	City     string     `json:"city"`
	Province valueField `json:"province"`
	Author   struct {
		Name string `json:"name"`
	} `json:"author"`
	ContractType valueField `json:"contractType"`
	Teleworking  valueField `json:"teleworking"`
	SalaryMin    valueField `json:"salaryMin"`
	SalaryMax    valueField `json:"salaryMax"`
	Link         string     `json:"link"`
	Published    string     `json:"published"`
}

type offerList struct {
	Offers []offerSummary `json:"offers"`
}

func (a *Adapter) Search(ctx context.Context, sess *domain.Session, action domain.SearchAction) ([]domain.Listing, error) {
	query := url.Values{}
	query.Set("q", action.Keywords)
	if action.Location != "" {
		query.Set("province", action.Location)
	}
	for k, v := range action.Filters {
		query.Set(k, v)
	}
	query.Set("maxResults", strconv.Itoa(platform.PageLimit(action.Limit, a.pageSize)))

	var resp offerList
	if err := a.client.DoJSON(ctx, sess, platform.Request{Method: http.MethodGet, Path: "/api/9/offer", Query: query}, &resp); err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		if o.ID == "" {
			continue
		}
		listings = append(listings, domain.Listing{
			ID:             o.ID,
			Platform:       domain.PlatformInfoJobs,
			Title:          platform.OrUnknown(o.Title),
			CompanyName:    platform.OrUnknown(o.Author.Name),
			Location:       location(o.City, o.Province.Value),
			EmploymentType: o.ContractType.Value,
			WorkplaceType:  teleworking(o.Teleworking.Value),
			SalaryMin:      parseAmount(o.SalaryMin.Value),
			SalaryMax:      parseAmount(o.SalaryMax.Value),
			SalaryCurrency: "EUR",
			URL:            o.Link,
			PostedAt:       parseTime(o.Published),
			HasDirectApply: true,
		})
	}
	return listings, nil
}

type offerDetail struct {
	offerSummary
	Description string `json:"description"`
	Profile     struct {
		Name string `json:"name"`
	} `json:"profile"`
	Category      valueField `json:"category"`
	ExperienceMin valueField `json:"experienceMin"`
	SkillsList    []struct {
		Skill string `json:"skill"`
	} `json:"skillsList"`
	ExternalURLForm string `json:"externalUrlForm"`
}

func (a *Adapter) GetDetails(ctx context.Context, sess *domain.Session, listingID string) (*domain.Listing, error) {
	var o offerDetail
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodGet,
		Path:   "/api/7/offer/" + url.PathEscape(listingID),
	}, &o)
	if err != nil {
		return nil, err
	}

	company := o.Profile.Name
	if company == "" {
		company = o.Author.Name
	}
	skills := make([]string, 0, len(o.SkillsList))
	for _, s := range o.SkillsList {
		skills = append(skills, s.Skill)
	}

	return &domain.Listing{
		ID:              listingID,
		Platform:        domain.PlatformInfoJobs,
		Title:           platform.OrUnknown(o.Title),
		CompanyName:     platform.OrUnknown(company),
		Location:        location(o.City, o.Province.Value),
		Description:     o.Description,
		Skills:          skills,
		EmploymentType:  o.ContractType.Value,
		WorkplaceType:   teleworking(o.Teleworking.Value),
		ExperienceYears: experienceYears(o.ExperienceMin.Value),
		Industry:        o.Category.Value,
		SalaryMin:       parseAmount(o.SalaryMin.Value),
		SalaryMax:       parseAmount(o.SalaryMax.Value),
		SalaryCurrency:  "EUR",
		URL:             o.Link,
		PostedAt:        parseTime(o.Published),
		// offers with an external form are applied to on the employer's site
		HasDirectApply: o.ExternalURLForm == "",
	}, nil
}

type applicationResponse struct {
	ApplicationID string `json:"applicationId"`
}

func (a *Adapter) Apply(ctx context.Context, sess *domain.Session, action domain.ApplyAction) (*domain.ApplyResult, error) {
	var resp applicationResponse
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodPost,
		Path:   "/api/4/offer/" + url.PathEscape(action.ListingID) + "/application",
		JSON: map[string]string{
			"coverLetter":   action.CoverLetter,
			"curriculumUrl": action.ResumeURL,
		},
	}, &resp)
	if err != nil {
		if platform.IsStatus(err, http.StatusConflict) {
			return nil, domain.ApplyNotSupported(domain.PlatformInfoJobs, action.ListingID)
		}
		return nil, err
	}
	return &domain.ApplyResult{
		ListingID:     action.ListingID,
		ApplicationID: resp.ApplicationID,
		Message:       "application registered",
		AppliedAt:     time.Now().UTC(),
	}, nil
}

func location(city, province string) string {
	switch {
	case city != "" && province != "" && !strings.EqualFold(city, province):
		return city + ", " + province
	case city != "":
		return city
	default:
		return platform.OrUnknown(province)
	}
}

func parseAmount(raw string) float64 {
	raw = strings.NewReplacer(".", "", "€", "", " ", "").Replace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseTime(raw string) *time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func experienceYears(raw string) int {
	switch platform.NormalizeToken(raw) {
	case "UN_ANYO":
		return 1
	case "DOS_ANYOS":
		return 2
	case "TRES_ANYOS":
		return 3
	case "CINCO_ANYOS":
		return 5
	case "DIEZ_ANYOS":
		return 10
	default:
		return 0
	}
}
