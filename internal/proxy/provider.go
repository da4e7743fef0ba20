package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/cache"
)

// HTTPProvider fetches a JSON array of proxies from a provider endpoint
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context) ([]Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy provider returned status %d", resp.StatusCode)
	}

	var proxies []Proxy
	if err := json.NewDecoder(resp.Body).Decode(&proxies); err != nil {
		return nil, fmt.Errorf("failed to decode proxy list: %w", err)
	}
	return proxies, nil
}

// CachedProvider serves the provider list from cache so several processes share one fetch
type CachedProvider struct {
	next   Provider
	cache  cache.Cache
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(next Provider, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{next: next, cache: c, key: "proxy:list", ttl: ttl, logger: logger}
}

func (p *CachedProvider) Fetch(ctx context.Context) ([]Proxy, error) {
	raw, err := p.cache.Get(ctx, p.key)
	if err == nil {
		var proxies []Proxy
		if jsonErr := json.Unmarshal(raw, &proxies); jsonErr == nil {
			return proxies, nil
		}
		p.logger.Warn("Discarding unreadable cached proxy list")
	} else if !errors.Is(err, cache.ErrNotFound) {
		p.logger.Warn("Proxy cache read failed", slog.String("error", err.Error()))
	}

	proxies, err := p.next.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(proxies); err == nil {
		if err := p.cache.Set(ctx, p.key, raw, p.ttl); err != nil {
			p.logger.Warn("Proxy cache write failed", slog.String("error", err.Error()))
		}
	}
	return proxies, nil
}
