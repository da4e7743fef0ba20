// Package catho drives the Catho job board.
package catho

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
	defaultBaseURL  = "https://www.catho.com.br"
	defaultLoginURL = "https://seguro.catho.com.br/signin/"
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
			Platform: domain.PlatformCatho,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
		}, sessions, proxies, logger),
		auth:     auth,
		loginURL: cfg.LoginURL,
		pageSize: platform.PageLimit(cfg.PageSize, defaultPageSize),
	}
}

func (a *Adapter) Platform() domain.Platform                  { return domain.PlatformCatho }
func (a *Adapter) RequiresDirectApply() bool                  { return false }
func (a *Adapter) CanonicalJobType(raw string) domain.JobType { return canonicalJobType(raw) }

func (a *Adapter) Login(ctx context.Context, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error) {
	bundle, _, err := platform.Authenticate(ctx, a.auth, domain.PlatformCatho, a.loginURL, creds, userID, "cathoSession")
	return bundle, err
}

func (a *Adapter) BuildSearch(c domain.SearchCriteria) domain.SearchAction {
	filters := map[string]string{}

	var regimes []string
	for _, t := range c.JobTypes {
		if v, ok := regime(t); ok {
			regimes = append(regimes, v)
		}
	}
	if len(regimes) > 0 {
		filters["regime"] = strings.Join(regimes, ",")
	}
	if v, ok := level(c.Experience); ok {
		filters["nivel"] = v
	}
	if v, ok := period(c.Window); ok {
		filters["periodo"] = v
	}
	if c.SalaryMin > 0 {
		// salary filters are monthly in BRL
		filters["salario_min"] = strconv.Itoa(c.SalaryMin / 12)
	}

	return domain.SearchAction{
		Keywords: strings.Join(c.Keywords, " "),
		Location: c.Location,
		Filters:  filters,
		Limit:    platform.PageLimit(c.Limit, a.pageSize),
	}
}

type vaga struct {
	ID      json.Number `json:"id"`
	Titulo  string      `json:"titulo"`
	Empresa struct {
		Nome string `json:"nome"`
	} `json:"empresa"`
	Cidade       string `json:"cidade"`
	UF           string `json:"uf"`
	Regime       string `json:"regime"`
	Modalidade   string `json:"modalidade"`
	FaixaSalario *struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"faixaSalarial"`
	CandidaturaFacil bool   `json:"candidaturaFacil"`
	DataPublicacao   string `json:"dataPublicacao"`

	Descricao       string   `json:"descricao"`
	Habilidades     []string `json:"habilidades"`
	AreaAtuacao     string   `json:"areaAtuacao"`
	ExperienciaAnos int      `json:"experienciaAnos"`
}

func (v *vaga) toListing() domain.Listing {
	loc := v.Cidade
	if v.UF != "" {
		if loc != "" {
			loc += ", "
		}
		loc += v.UF
	}
	l := domain.Listing{
		ID:              v.ID.String(),
		Platform:        domain.PlatformCatho,
		Title:           platform.OrUnknown(v.Titulo),
		CompanyName:     platform.OrUnknown(v.Empresa.Nome),
		Location:        platform.OrUnknown(loc),
		Description:     v.Descricao,
		Skills:          v.Habilidades,
		EmploymentType:  v.Regime,
		WorkplaceType:   modality(v.Modalidade),
		ExperienceYears: v.ExperienciaAnos,
		Industry:        v.AreaAtuacao,
		URL:             "https://www.catho.com.br/vagas/" + v.ID.String(),
		HasDirectApply:  v.CandidaturaFacil,
	}
	if v.FaixaSalario != nil {
		l.SalaryMin = v.FaixaSalario.Min
		l.SalaryMax = v.FaixaSalario.Max
		l.SalaryCurrency = "BRL"
	}
	if t, err := time.Parse(time.RFC3339, v.DataPublicacao); err == nil {
		l.PostedAt = &t
	}
	return l
}

func (a *Adapter) Search(ctx context.Context, sess *domain.Session, action domain.SearchAction) ([]domain.Listing, error) {
	query := url.Values{}
	query.Set("q", action.Keywords)
	if action.Location != "" {
		query.Set("onde", action.Location)
	}
	for k, v := range action.Filters {
		query.Set(k, v)
	}
	query.Set("limite", strconv.Itoa(platform.PageLimit(action.Limit, a.pageSize)))

	var resp struct {
		Vagas []vaga `json:"vagas"`
	}
	if err := a.client.DoJSON(ctx, sess, platform.Request{Method: http.MethodGet, Path: "/api/v2/vagas", Query: query}, &resp); err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(resp.Vagas))
	for i := range resp.Vagas {
		if resp.Vagas[i].ID == "" {
			continue
		}
		listings = append(listings, resp.Vagas[i].toListing())
	}
	return listings, nil
}

func (a *Adapter) GetDetails(ctx context.Context, sess *domain.Session, listingID string) (*domain.Listing, error) {
	var v vaga
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodGet,
		Path:   "/api/v2/vagas/" + url.PathEscape(listingID),
	}, &v)
	if err != nil {
		return nil, err
	}
	if v.ID == "" {
		v.ID = json.Number(listingID)
	}
	listing := v.toListing()
	return &listing, nil
}

func (a *Adapter) Apply(ctx context.Context, sess *domain.Session, action domain.ApplyAction) (*domain.ApplyResult, error) {
	var resp struct {
		ID json.Number `json:"id"`
	}
	err := a.client.DoJSON(ctx, sess, platform.Request{
		Method: http.MethodPost,
		Path:   "/api/v2/vagas/" + url.PathEscape(action.ListingID) + "/candidaturas",
		JSON: map[string]string{
			"curriculoUrl":      action.ResumeURL,
			"cartaApresentacao": action.CoverLetter,
		},
	}, &resp)
	if err != nil {
		// 422 is returned for listings that only accept applications on the employer site
		if platform.IsStatus(err, http.StatusUnprocessableEntity) {
			return nil, domain.ApplyNotSupported(domain.PlatformCatho, action.ListingID)
		}
		return nil, err
	}
	return &domain.ApplyResult{
		ListingID:     action.ListingID,
		ApplicationID: resp.ID.String(),
		Message:       "candidatura enviada",
		AppliedAt:     time.Now().UTC(),
	}, nil
}
