package postgresql

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, u *url.URL)
	}{
		{
			name:   "escapes credentials",
			config: Config{Host: "db", Port: 5432, User: "auto apply", Password: "p@ss:w/rd", Database: "autoapply_db", SSLMode: "disable"},
			check: func(t *testing.T, u *url.URL) {
				assert.Equal(t, "auto apply", u.User.Username())
				pass, _ := u.User.Password()
				assert.Equal(t, "p@ss:w/rd", pass)
				assert.Equal(t, "db:5432", u.Host)
				assert.Equal(t, "/autoapply_db", u.Path)
				assert.Equal(t, "disable", u.Query().Get("sslmode"))
			},
		},
		{
			name:   "application name",
			config: Config{Host: "localhost", Port: 5433, Database: "x", ApplicationName: "autoapply-worker-service"},
			check: func(t *testing.T, u *url.URL) {
				assert.Equal(t, "autoapply-worker-service", u.Query().Get("application_name"))
				assert.False(t, u.Query().Has("sslmode"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.config.DSN())
			require.NoError(t, err)
			assert.Equal(t, "postgres", u.Scheme)
			tt.check(t, u)
		})
	}
}
