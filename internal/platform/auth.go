package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// LoginRequest asks a browser automation backend to sign in on a platform
type LoginRequest struct {
	Platform domain.Platform `json:"platform"`
	LoginURL string          `json:"login_url"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	UserID   string          `json:"user_id"`
}

// LoginResult is what the browser session ended with
type LoginResult struct {
	Cookies   []*http.Cookie    `json:"-"`
	Headers   map[string]string `json:"headers,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Challenge string            `json:"challenge,omitempty"`
}

// Authenticator abstracts headless-browser login
type Authenticator interface {
	Authenticate(ctx context.Context, req LoginRequest) (*LoginResult, error)
}

// RemoteAuthenticator delegates logins to a browser automation sidecar over HTTP
type RemoteAuthenticator struct {
	endpoint string
	client   *http.Client
}

func NewRemoteAuthenticator(endpoint string, timeout time.Duration) *RemoteAuthenticator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RemoteAuthenticator{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type remoteCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
}

type remoteLoginResponse struct {
	Cookies   []remoteCookie    `json:"cookies"`
	Headers   map[string]string `json:"headers"`
	UserAgent string            `json:"user_agent"`
	Challenge string            `json:"challenge"`
	Error     string            `json:"error"`
}

func (a *RemoteAuthenticator) Authenticate(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/login", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("browser automation unavailable: %w", err)
	}
	defer resp.Body.Close()

	var out remoteLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg := out.Error
		if msg == "" {
			msg = "invalid credentials"
		}
		return nil, domain.LoginFailed(req.Platform, msg, nil)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("browser automation answered %d: %s", resp.StatusCode, out.Error)
	}

	result := &LoginResult{
		Headers:   out.Headers,
		UserAgent: out.UserAgent,
		Challenge: out.Challenge,
	}
	for _, c := range out.Cookies {
		result.Cookies = append(result.Cookies, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return result, nil
}

// BundleFromLogin validates a login result and turns it into a reusable credential bundle.
// A pending challenge or a missing auth cookie is a failed login.
func BundleFromLogin(p domain.Platform, res *LoginResult, required ...string) (*domain.CredentialBundle, error) {
	if res == nil {
		return nil, domain.LoginFailed(p, "empty login result", nil)
	}
	if res.Challenge != "" {
		return nil, domain.LoginFailed(p, fmt.Sprintf("unresolved %s challenge", res.Challenge), nil)
	}

	byName := make(map[string]string, len(res.Cookies))
	parts := make([]string, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		if c.Name == "" {
			continue
		}
		byName[c.Name] = c.Value
		parts = append(parts, c.Name+"="+c.Value)
	}
	for _, name := range required {
		if byName[name] == "" {
			return nil, domain.LoginFailed(p, fmt.Sprintf("login did not produce the %s cookie", name), nil)
		}
	}

	headers := make(map[string]string, len(res.Headers))
	for k, v := range res.Headers {
		headers[k] = v
	}
	return &domain.CredentialBundle{
		Cookies:   strings.Join(parts, "; "),
		Headers:   headers,
		UserAgent: res.UserAgent,
	}, nil
}

// Authenticate is the shared Login flow of the adapters
func Authenticate(ctx context.Context, auth Authenticator, p domain.Platform, loginURL string, creds domain.LoginCredentials, userID string, required ...string) (*domain.CredentialBundle, *LoginResult, error) {
	if auth == nil {
		return nil, nil, domain.LoginFailed(p, "interactive login is not configured", nil)
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, nil, domain.LoginFailed(p, "username and password are required", nil)
	}
	res, err := auth.Authenticate(ctx, LoginRequest{
		Platform: p,
		LoginURL: loginURL,
		Username: creds.Username,
		Password: creds.Password,
		UserID:   userID,
	})
	if err != nil {
		if domain.IsKind(err, domain.KindLoginFailed) {
			return nil, nil, err
		}
		return nil, nil, domain.LoginFailed(p, "login could not be completed", err)
	}
	bundle, err := BundleFromLogin(p, res, required...)
	if err != nil {
		return nil, nil, err
	}
	return bundle, res, nil
}
