package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/shared/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 8 << 20

// SessionReporter receives session health signals from platform responses
type SessionReporter interface {
	Invalidate(ctx context.Context, id, reason string) error
	MarkRateLimited(ctx context.Context, id string) error
	RecordRequest(ctx context.Context, id string) error
}

// ProxyReporter receives egress outcome signals
type ProxyReporter interface {
	ReportSuccess(proxyURL string)
	ReportFailure(proxyURL string)
}

// ClientConfig configures the HTTP client shared by an adapter
type ClientConfig struct {
	Platform domain.Platform
	BaseURL  string
	Timeout  time.Duration
}

type noopProxies struct{}

func (noopProxies) ReportSuccess(string) {}
func (noopProxies) ReportFailure(string) {}

// Request describes one call to a platform endpoint
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	JSON    any
	Form    url.Values
	Headers map[string]string
}

// Client performs authenticated platform calls with the session's credentials and proxy,
// and reports session and proxy health from every response.
type Client struct {
	platform domain.Platform
	baseURL  string
	timeout  time.Duration
	sessions SessionReporter
	proxies  ProxyReporter
	logger   *slog.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewClient(cfg ClientConfig, sessions SessionReporter, proxies ProxyReporter, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if proxies == nil {
		proxies = noopProxies{}
	}
	return &Client{
		platform: cfg.Platform,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout,
		sessions: sessions,
		proxies:  proxies,
		logger:   logger.With(slog.String("platform", cfg.Platform.String())),
		tracer:   telemetry.Tracer("platform"),
		clients:  make(map[string]*http.Client),
	}
}

func (c *Client) httpClient(proxyURL string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[proxyURL]; ok {
		return hc, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	hc := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	c.clients[proxyURL] = hc
	return hc, nil
}

// Do sends the request with the session's credentials and returns the response body of a 2xx reply.
// 401/403 invalidate the session and 429 marks it rate limited before the error is returned.
func (c *Client) Do(ctx context.Context, sess *domain.Session, r Request) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "platform.request", trace.WithAttributes(
		attribute.String("platform", c.platform.String()),
		attribute.String("http.method", r.Method),
		attribute.String("http.path", r.Path),
	))
	defer span.End()

	body, status, err := c.do(ctx, sess, r)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return body, err
}

func (c *Client) do(ctx context.Context, sess *domain.Session, r Request) ([]byte, int, error) {
	req, err := c.newRequest(ctx, sess, r)
	if err != nil {
		return nil, 0, err
	}

	proxyURL := ""
	if sess != nil {
		proxyURL = sess.ProxyURL
	}
	hc, err := c.httpClient(proxyURL)
	if err != nil {
		return nil, 0, domain.TransientError(c.platform, "could not configure proxy", err)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if proxyURL != "" {
			c.proxies.ReportFailure(proxyURL)
		}
		c.logger.Warn("Platform request failed",
			slog.String("path", r.Path),
			slog.String("error", err.Error()),
		)
		return nil, 0, domain.TransientError(c.platform, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, domain.TransientError(c.platform, "failed to read response", err)
	}

	c.logger.Debug("Platform request completed",
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	// session health updates must survive a caller deadline
	reportCtx := context.WithoutCancel(ctx)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if sess != nil {
			reason := fmt.Sprintf("platform answered %d", resp.StatusCode)
			if err := c.sessions.Invalidate(reportCtx, sess.ID, reason); err != nil {
				c.logger.Error("Failed to invalidate session", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
			}
		}
		return nil, resp.StatusCode, domain.SessionInvalid(c.platform, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		if sess != nil {
			if err := c.sessions.MarkRateLimited(reportCtx, sess.ID); err != nil {
				c.logger.Error("Failed to mark session rate limited", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
			}
		}
		return nil, resp.StatusCode, domain.RateLimited(c.platform)

	case resp.StatusCode >= 500:
		if proxyURL != "" {
			c.proxies.ReportFailure(proxyURL)
		}
		return nil, resp.StatusCode, domain.TransientError(c.platform, fmt.Sprintf("platform answered %d", resp.StatusCode), nil)

	case resp.StatusCode >= 300:
		return body, resp.StatusCode, domain.RequestRejected(c.platform, resp.StatusCode, fmt.Sprintf("platform answered %d", resp.StatusCode))
	}

	if proxyURL != "" {
		c.proxies.ReportSuccess(proxyURL)
	}
	if sess != nil {
		if err := c.sessions.RecordRequest(reportCtx, sess.ID); err != nil {
			c.logger.Warn("Failed to record session request", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
		}
	}
	return body, resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, sess *domain.Session, r Request) (*http.Request, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.JSON != nil:
		raw, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sess != nil {
		for k, v := range sess.Headers {
			req.Header.Set(k, v)
		}
		if sess.Cookies != "" {
			req.Header.Set("Cookie", sess.Cookies)
		}
		if sess.UserAgent != "" {
			req.Header.Set("User-Agent", sess.UserAgent)
		}
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DoJSON sends the request and decodes the JSON reply into out.
// A body that is not valid JSON is reported as a PARSE error.
func (c *Client) DoJSON(ctx context.Context, sess *domain.Session, r Request, out any) error {
	body, err := c.Do(ctx, sess, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.ParseError(c.platform, "unexpected response body", err)
	}
	return nil
}

// Logger returns the platform-scoped logger
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// CookieValue extracts one cookie from a Cookie header value
func CookieValue(cookieHeader, name string) string {
	req := http.Request{Header: http.Header{"Cookie": {cookieHeader}}}
	ck, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// IsStatus reports whether err is a platform error carrying the HTTP status
func IsStatus(err error, status int) bool {
	var pe *domain.PlatformError
	return errors.As(err, &pe) && pe.StatusCode == status
}
