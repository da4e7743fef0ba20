package indeed

import (
	"context"
	"encoding/json"
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

func TestJobTypeParam_Total(t *testing.T) {
	for _, jt := range append(domain.AllJobTypes, domain.JobTypeUnknown) {
		v, ok := jobTypeParam(jt)
		if !ok {
			assert.Contains(t, []domain.JobType{domain.JobTypeFreelance, domain.JobTypeUnknown}, jt)
			continue
		}
		assert.Equal(t, jt, canonicalJobType(v))
	}
}

func TestBuildSearch(t *testing.T) {
	a := New(Config{}, platformtest.NewSessions(), nil, nil, discard)

	action := a.BuildSearch(domain.SearchCriteria{
		Keywords:   []string{"python"},
		Location:   "Austin, TX",
		JobTypes:   []domain.JobType{domain.JobTypeFreelance, domain.JobTypePartTime, domain.JobTypeFullTime},
		Experience: domain.ExperienceLead,
		Window:     domain.DateWindowAny,
	})

	assert.Equal(t, map[string]string{
		"jt":     "parttime",
		"explvl": "senior_level",
	}, action.Filters)
	assert.Equal(t, defaultPageSize, action.Limit)
}

func TestSearchAndApply(t *testing.T) {
	var submitted map[string]string
	a, sessions, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/jobs/search":
			assert.Equal(t, "Austin, TX", r.URL.Query().Get("l"))
			_, _ = w.Write([]byte(`{"results":[
				{"jobkey":"k1","title":"Python Dev","company":"Hooli","formattedLocation":"Austin, TX","jobTypes":["Full-time"],
				 "remoteWorkModel":"REMOTE_ALWAYS","indeedApplyEnabled":true,"pubDate":1714550000000},
				{"jobkey":"k2","title":"Data Engineer","company":"Pied Piper","indeedApplyEnabled":false}
			]}`))
		case r.URL.Path == "/api/jobs/viewjob" && r.URL.Query().Get("jk") == "k1":
			_, _ = w.Write([]byte(`{"title":"Python Dev","company":"Hooli","description":"Django","indeedApplyEnabled":true,
				"industry":"Internet","taxonomyAttributes":{"skills":["python"]},"salary":{"min":100000,"max":140000,"currency":"USD"}}`))
		case r.URL.Path == "/api/jobs/viewjob" && r.URL.Query().Get("jk") == "k2":
			_, _ = w.Write([]byte(`{"title":"Data Engineer","company":"Pied Piper","indeedApplyEnabled":false}`))
		case r.URL.Path == "/api/indeedapply/submit":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
			_, _ = w.Write([]byte(`{"applyId":"ia-9"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sess := platformtest.Session(domain.PlatformIndeed, "CTK=1; SOCK=2")
	ctx := context.Background()

	listings, err := a.Search(ctx, sess, domain.SearchAction{Keywords: "python", Location: "Austin, TX"})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, domain.JobTypeFullTime, a.CanonicalJobType(listings[0].EmploymentType))
	assert.Equal(t, domain.WorkplaceRemote, listings[0].WorkplaceType)
	assert.False(t, listings[1].HasDirectApply)
	assert.Equal(t, domain.UnknownField, listings[1].Location)

	res, err := a.Apply(ctx, sess, domain.ApplyAction{ListingID: "k1", ResumeURL: "https://cdn/cv.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "ia-9", res.ApplicationID)
	assert.Equal(t, "k1", submitted["jobKey"])

	_, err = a.Apply(ctx, sess, domain.ApplyAction{ListingID: "k2"})
	assert.True(t, domain.IsKind(err, domain.KindApplyNotSupported))

	assert.Equal(t, 4, sessions.Requests[sess.ID])
}

func TestLogin_RequiresBothCookies(t *testing.T) {
	a, _, auth := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	creds := domain.LoginCredentials{Username: "u", Password: "p"}

	auth.Result = &platform.LoginResult{Cookies: []*http.Cookie{{Name: "CTK", Value: "1"}}}
	_, err := a.Login(context.Background(), creds, "user-1")
	assert.True(t, domain.IsKind(err, domain.KindLoginFailed))

	auth.Result = &platform.LoginResult{Cookies: []*http.Cookie{{Name: "CTK", Value: "1"}, {Name: "SOCK", Value: "2"}}}
	bundle, err := a.Login(context.Background(), creds, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "CTK=1; SOCK=2", bundle.Cookies)
}
