package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/google/uuid"
)

// ErrCircuitOpen is returned while the webhook endpoint is considered down
var ErrCircuitOpen = errors.New("circuit breaker is open")

// WebhookPayload is the JSON document posted to the webhook
type WebhookPayload struct {
	Text        string             `json:"text"`
	Metadata    WebhookMetadata    `json:"metadata"`
	Transitions []model.Transition `json:"transitions"`
}

// WebhookMetadata describes the delivery
type WebhookMetadata struct {
	Service    string      `json:"service"`
	DeliveryID string      `json:"delivery_id"`
	ShopID     string      `json:"shop_id"`
	ShopName   string      `json:"shop_name"`
	ShopURL    string      `json:"shop_url"`
	Severity   model.Level `json:"severity"`
	Timestamp  string      `json:"timestamp"`
}

// WebhookNotifier posts transitions as JSON with retries and a circuit breaker
type WebhookNotifier struct {
	webhook        model.Webhook
	httpClient     *http.Client
	circuitBreaker *CircuitBreaker
	retry          *RetryStrategy
}

// NewWebhookNotifier validates webhook and creates the notifier
func NewWebhookNotifier(webhook model.Webhook, timeout time.Duration) (*WebhookNotifier, error) {
	if err := webhook.Validate(); err != nil {
		return nil, err
	}
	return &WebhookNotifier{
		webhook: webhook,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: NewCircuitBreaker(5, 2, 60*time.Second),
		retry:          NewRetryStrategy(webhook.RetryConfig),
	}, nil
}

// Notify implements Notifier
func (n *WebhookNotifier) Notify(ctx context.Context, shop *model.Shop, transitions []model.Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	payload := buildWebhookPayload(shop, transitions)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	if !n.circuitBreaker.CanAttempt() {
		slog.Warn("Circuit breaker is open, skipping webhook delivery",
			"shop_id", shop.Key(),
			"delivery_id", payload.Metadata.DeliveryID,
			"circuit_state", n.circuitBreaker.State().String(),
		)
		return ErrCircuitOpen
	}

	for attempt := 1; attempt <= n.retry.MaxAttempts(); attempt++ {
		result, err := n.deliver(ctx, body)
		result.AttemptNumber = attempt

		if err == nil {
			slog.Info("Webhook delivered",
				"shop_id", shop.Key(),
				"delivery_id", payload.Metadata.DeliveryID,
				"attempt", attempt,
				"status_code", result.StatusCode,
				"duration_ms", result.DurationMs,
			)
			n.circuitBreaker.RecordSuccess()
			return nil
		}

		if !n.retry.ShouldRetry(attempt, result.StatusCode, err) {
			n.circuitBreaker.RecordFailure()
			return fmt.Errorf("webhook delivery failed after %d attempts: %w", attempt, err)
		}

		delay := n.retry.Delay(attempt)
		slog.Warn("Webhook delivery failed, retrying",
			"shop_id", shop.Key(),
			"delivery_id", payload.Metadata.DeliveryID,
			"attempt", attempt,
			"next_retry_ms", delay.Milliseconds(),
			"error", result.Error,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	n.circuitBreaker.RecordFailure()
	return fmt.Errorf("webhook delivery failed after %d attempts", n.retry.MaxAttempts())
}

// deliver performs a single delivery attempt
func (n *WebhookNotifier) deliver(ctx context.Context, body []byte) (model.DeliveryAttempt, error) {
	start := time.Now()
	attempt := model.DeliveryAttempt{Timestamp: start.UTC()}

	req, err := http.NewRequestWithContext(ctx, n.webhook.Method, n.webhook.URL, bytes.NewReader(body))
	if err != nil {
		attempt.Error = fmt.Sprintf("Failed to create request: %v", err)
		return attempt, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.webhook.Headers {
		req.Header.Set(key, value)
	}

	resp, err := n.httpClient.Do(req)
	attempt.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		attempt.Error = fmt.Sprintf("Request failed: %v", err)
		return attempt, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	attempt.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attempt.Error = fmt.Sprintf("Webhook returned status %d", resp.StatusCode)
		return attempt, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return attempt, nil
}

func buildWebhookPayload(shop *model.Shop, transitions []model.Transition) WebhookPayload {
	severity := model.LevelSuccess
	for _, t := range transitions {
		if t.ToLevel.Severity() > severity.Severity() {
			severity = t.ToLevel
		}
	}

	text := fmt.Sprintf("%s: %d status change(s)", shop.Name, len(transitions))
	if len(transitions) == 1 {
		text = title(shop, transitions[0])
	}

	return WebhookPayload{
		Text: text,
		Metadata: WebhookMetadata{
			Service:    "shopwatch",
			DeliveryID: uuid.NewString(),
			ShopID:     shop.Key(),
			ShopName:   shop.Name,
			ShopURL:    shop.URL,
			Severity:   severity,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		},
		Transitions: transitions,
	}
}
