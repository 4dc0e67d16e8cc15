// Package shopapi talks to the administrative API of a monitored shop.
package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Endpoint names, used in errors and metrics
const (
	EndpointToken      = "token"
	EndpointInfo       = "info"
	EndpointExtensions = "extensions"
	EndpointTasks      = "scheduled_tasks"
)

const (
	responseBodyLimit = 4 * 1024 * 1024
	tokenExpiryMargin = 30 * time.Second
)

// PlatformInfo is the normalized platform configuration of a shop
type PlatformInfo struct {
	Version            string
	Environment        string
	AdminWorkerEnabled bool
}

// Client is the remote shop API. Each call is independent and returns an
// error when the call failed; an empty list is a successful result.
type Client interface {
	PlatformInfo(ctx context.Context, shop *model.Shop) (*PlatformInfo, error)
	InstalledExtensions(ctx context.Context, shop *model.Shop) ([]model.Extension, error)
	ScheduledTasks(ctx context.Context, shop *model.Shop) ([]model.ScheduledTask, error)
}

// RequestError describes a failed call to one endpoint
type RequestError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Options configures the HTTP client
type Options struct {
	Timeout   time.Duration // Per attempt
	RetryMax  int
	RateLimit float64 // Requests per second per shop, 0 disables limiting
	RateBurst int
}

type token struct {
	value     string
	expiresAt time.Time
}

// HTTPClient implements Client against the Shopware admin API
type HTTPClient struct {
	client  *retryablehttp.Client
	opts    Options
	flights singleflight.Group

	mu       sync.Mutex
	tokens   map[string]token
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates a shop API client
func NewHTTPClient(opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 3
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient = newTransportClient(opts.Timeout)

	return &HTTPClient{
		client:   rc,
		opts:     opts,
		tokens:   make(map[string]token),
		limiters: make(map[string]*rate.Limiter),
	}
}

// newTransportClient creates an HTTP client with connection pooling
func newTransportClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// PlatformInfo fetches /api/_info/config
func (c *HTTPClient) PlatformInfo(ctx context.Context, shop *model.Shop) (*PlatformInfo, error) {
	body, err := c.do(ctx, shop, EndpointInfo, http.MethodGet, "/api/_info/config", nil)
	if err != nil {
		return nil, err
	}
	info, err := parsePlatformInfo(body)
	if err != nil {
		return nil, &RequestError{Endpoint: EndpointInfo, Err: err}
	}
	return info, nil
}

// InstalledExtensions fetches /api/_action/extension/installed
func (c *HTTPClient) InstalledExtensions(ctx context.Context, shop *model.Shop) ([]model.Extension, error) {
	body, err := c.do(ctx, shop, EndpointExtensions, http.MethodGet, "/api/_action/extension/installed", nil)
	if err != nil {
		return nil, err
	}
	extensions, err := parseExtensions(body)
	if err != nil {
		return nil, &RequestError{Endpoint: EndpointExtensions, Err: err}
	}
	return extensions, nil
}

// ScheduledTasks searches /api/search/scheduled-task
func (c *HTTPClient) ScheduledTasks(ctx context.Context, shop *model.Shop) ([]model.ScheduledTask, error) {
	criteria := map[string]any{"limit": 500}
	body, err := c.do(ctx, shop, EndpointTasks, http.MethodPost, "/api/search/scheduled-task", criteria)
	if err != nil {
		return nil, err
	}
	tasks, err := parseScheduledTasks(body)
	if err != nil {
		return nil, &RequestError{Endpoint: EndpointTasks, Err: err}
	}
	return tasks, nil
}

func (c *HTTPClient) do(ctx context.Context, shop *model.Shop, endpoint, method, path string, payload any) ([]byte, error) {
	if err := c.waitForRateLimit(ctx, shop.Key()); err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: err}
	}

	accessToken, err := c.token(ctx, shop)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &RequestError{Endpoint: endpoint, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, shop.URL+path, body)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, status, err := c.send(req)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: err}
	}
	if status == http.StatusUnauthorized {
		c.forgetToken(shop.Key())
	}
	if status < 200 || status >= 300 {
		return nil, &RequestError{Endpoint: endpoint, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}

	slog.Debug("Shop API request completed",
		"shop_id", shop.Key(),
		"endpoint", endpoint,
		"status_code", status,
		"body_length", len(respBody),
	)

	return respBody, nil
}

func (c *HTTPClient) send(req *retryablehttp.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (c *HTTPClient) token(ctx context.Context, shop *model.Shop) (string, error) {
	key := shop.Key()

	c.mu.Lock()
	cached, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	// Concurrent calls for the same shop share one token request
	v, err, _ := c.flights.Do(key, func() (any, error) {
		return c.fetchToken(ctx, shop)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *HTTPClient) fetchToken(ctx context.Context, shop *model.Shop) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     shop.Credentials.ClientID,
		"client_secret": shop.Credentials.ClientSecret,
	})
	if err != nil {
		return "", &RequestError{Endpoint: EndpointToken, Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, shop.URL+"/api/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", &RequestError{Endpoint: EndpointToken, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.send(req)
	if err != nil {
		return "", &RequestError{Endpoint: EndpointToken, Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &RequestError{Endpoint: EndpointToken, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &RequestError{Endpoint: EndpointToken, Err: fmt.Errorf("decode token: %w", err)}
	}
	if parsed.AccessToken == "" {
		return "", &RequestError{Endpoint: EndpointToken, Err: errors.New("empty access token")}
	}

	expiresAt := time.Now().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenExpiryMargin)
	c.mu.Lock()
	c.tokens[shop.Key()] = token{value: parsed.AccessToken, expiresAt: expiresAt}
	c.mu.Unlock()

	return parsed.AccessToken, nil
}

func (c *HTTPClient) forgetToken(key string) {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}

func (c *HTTPClient) waitForRateLimit(ctx context.Context, key string) error {
	if c.opts.RateLimit <= 0 {
		return nil
	}

	c.mu.Lock()
	limiter, ok := c.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.opts.RateLimit), c.opts.RateBurst)
		c.limiters[key] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}
