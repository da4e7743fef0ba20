package infojobs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
	"github.com/cuongbtq/autoapply-be/internal/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *platformtest.Sessions, *platformtest.Authenticator) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	sessions := platformtest.NewSessions()
	auth := &platformtest.Authenticator{}
	return New(Config{BaseURL: server.URL}, sessions, nil, auth, discard), sessions, auth
}

func TestMappings_Total(t *testing.T) {
	for _, jt := range append(domain.AllJobTypes, domain.JobTypeUnknown) {
		c, cok := contractType(jt)
		d, dok := workDay(jt)
		switch jt {
		case domain.JobTypeUnknown:
			assert.False(t, cok || dok)
		default:
			assert.True(t, cok || dok, "%s has no InfoJobs mapping", jt)
		}
		if cok {
			assert.Equal(t, jt, canonicalJobType(c))
		}
		if dok && !cok {
			assert.Equal(t, jt, canonicalJobType(d))
		}
	}

	for _, w := range []domain.DateWindow{domain.DateWindowAny, domain.DateWindowPastDay, domain.DateWindowPastWeek, domain.DateWindowPastMonth} {
		assert.NotEmpty(t, sinceDate(w))
	}

	_, ok := experienceMin(domain.ExperienceAny)
	assert.False(t, ok)
	v, ok := experienceMin(domain.ExperienceMid)
	assert.True(t, ok)
	assert.Equal(t, "TRES_ANYOS", v)
	assert.Equal(t, 3, experienceYears(v))
}

func TestBuildSearch(t *testing.T) {
	a := New(Config{}, platformtest.NewSessions(), nil, nil, discard)

	action := a.BuildSearch(domain.SearchCriteria{
		Keywords:   []string{"java", "spring"},
		Location:   "Madrid",
		JobTypes:   []domain.JobType{domain.JobTypeFullTime, domain.JobTypePartTime},
		Experience: domain.ExperienceAny,
		SalaryMin:  30000,
		Window:     domain.DateWindowPastWeek,
		Limit:      5,
	})

	assert.Equal(t, "java spring", action.Keywords)
	assert.Equal(t, 5, action.Limit)
	assert.Equal(t, map[string]string{
		"sinceDate":    "_7_DAYS",
		"contractType": "indefinido",
		"workDay":      "completa,parcial",
		"salaryMin":    "30000",
		"salaryPeriod": "bruto-anual",
	}, action.Filters)
}

func TestSearchAndDetails(t *testing.T) {
	a, sessions, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/9/offer":
			assert.Equal(t, "java", r.URL.Query().Get("q"))
			assert.Equal(t, "Madrid", r.URL.Query().Get("province"))
			_, _ = w.Write([]byte(`{"offers":[
				{"id":"abc","title":"Java Dev","city":"Madrid","province":{"value":"Madrid"},"author":{"name":"Initech"},
				 "contractType":{"value":"Indefinido"},"teleworking":{"value":"Híbrido"},"salaryMin":{"value":"30.000"},"published":"2025-04-01T10:00:00Z"},
				{"id":"","title":"broken"},
				{"id":"def"}
			]}`))
		case "/api/7/offer/abc":
			_, _ = w.Write([]byte(`{"id":"abc","title":"Java Dev","city":"Alcobendas","province":{"value":"Madrid"},
				"profile":{"name":"Initech SA"},"description":"Spring Boot","category":{"value":"Informática"},
				"experienceMin":{"value":"DOS_ANYOS"},"skillsList":[{"skill":"java"},{"skill":"spring"}],"externalUrlForm":"https://jobs.initech"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sess := platformtest.Session(domain.PlatformInfoJobs, "access_token=tok")
	sess.Headers["Authorization"] = "Bearer tok"

	listings, err := a.Search(context.Background(), sess, domain.SearchAction{Keywords: "java", Location: "Madrid"})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "Initech", listings[0].CompanyName)
	assert.Equal(t, "Madrid", listings[0].Location)
	assert.Equal(t, 30000.0, listings[0].SalaryMin)
	assert.Equal(t, domain.JobTypeFullTime, a.CanonicalJobType(listings[0].EmploymentType))
	assert.Equal(t, domain.UnknownField, listings[1].Title)

	listing, err := a.GetDetails(context.Background(), sess, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Initech SA", listing.CompanyName)
	assert.Equal(t, "Alcobendas, Madrid", listing.Location)
	assert.Equal(t, []string{"java", "spring"}, listing.Skills)
	assert.Equal(t, 2, listing.ExperienceYears)
	assert.Equal(t, "Informática", listing.Industry)
	assert.False(t, listing.HasDirectApply)

	assert.Equal(t, 2, sessions.Requests[sess.ID])
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr domain.ErrorKind
	}{
		{name: "accepted", status: http.StatusCreated},
		{name: "external form", status: http.StatusConflict, wantErr: domain.KindApplyNotSupported},
		{name: "expired token", status: http.StatusUnauthorized, wantErr: domain.KindSessionInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/4/offer/abc/application", r.URL.Path)
				w.WriteHeader(tt.status)
				if tt.status == http.StatusCreated {
					_, _ = w.Write([]byte(`{"applicationId":"ij-1"}`))
				}
			})

			res, err := a.Apply(context.Background(), platformtest.Session(domain.PlatformInfoJobs, "access_token=tok"), domain.ApplyAction{ListingID: "abc"})
			if tt.wantErr != "" {
				assert.True(t, domain.IsKind(err, tt.wantErr), "%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ij-1", res.ApplicationID)
		})
	}
}

func TestLogin(t *testing.T) {
	a, _, auth := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	auth.Result = &platform.LoginResult{Cookies: []*http.Cookie{{Name: "access_token", Value: "tok"}}}

	bundle, err := a.Login(context.Background(), domain.LoginCredentials{Username: "u", Password: "p"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", bundle.Headers["Authorization"])

	_, err = a.Login(context.Background(), domain.LoginCredentials{Username: "u"}, "user-1")
	assert.True(t, domain.IsKind(err, domain.KindLoginFailed))
}
