package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const feedBodyLimit = 16 * 1024 * 1024

// HTTPSource downloads the feed from a URL, retrying transient failures with
// exponential backoff
type HTTPSource struct {
	url            string
	client         *http.Client
	maxElapsed     time.Duration
	initialBackoff time.Duration
}

// NewHTTPSource creates a feed source for url
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:            url,
		client:         &http.Client{Timeout: timeout},
		maxElapsed:     30 * time.Second,
		initialBackoff: 500 * time.Millisecond,
	}
}

// Fetch downloads and decodes the feed
func (s *HTTPSource) Fetch(ctx context.Context) (*Feed, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialBackoff
	policy.MaxElapsedTime = s.maxElapsed

	attempt := 0
	feed, err := backoff.RetryWithData(func() (*Feed, error) {
		attempt++
		return s.fetchOnce(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch advisory feed after %d attempts: %w", attempt, err)
	}
	return feed, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("feed server error: %s", resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(fmt.Errorf("feed request failed: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, feedBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var feed Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode feed: %w", err))
	}

	slog.Debug("Advisory feed downloaded",
		"versions", len(feed.VersionToAdvisories),
		"advisories", len(feed.Advisories),
	)

	return &feed, nil
}
